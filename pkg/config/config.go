// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the scheduler's tunable policy knobs (spec.md §4.3,
// §9): the quantum length and the probabilistic anti-starvation skip
// constant, neither of which spec.md treats as a correctness requirement.
// Tunables load from TOML, the format the rest of the corpus's CLI tooling
// already standardizes on for config files.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the scheduler's tunable policy.
type Config struct {
	// Quantum is the wall time a regular-priority thread may run before
	// the dispatcher re-evaluates it (spec.md §4.3). 10ms in the base
	// design.
	Quantum time.Duration `toml:"quantum_ms"`

	// SkipNumerator/SkipDenominator express the probabilistic
	// anti-starvation skip probability as a fraction (spec.md §4.3's
	// 0x3000/0x7FFF, a policy knob not a correctness requirement per
	// spec.md §9).
	SkipNumerator   uint32 `toml:"skip_numerator"`
	SkipDenominator uint32 `toml:"skip_denominator"`

	// NumCPUs is how many CPU loops the kernel starts.
	NumCPUs int `toml:"num_cpus"`

	// PollInterval bounds how often a main-thread-exit waits for
	// num_threads to reach zero (spec.md §4.5 step 4).
	PollInterval time.Duration `toml:"poll_interval_ms"`
}

// Default returns the base design's values, taken directly from spec.md.
func Default() *Config {
	return &Config{
		Quantum:         10 * time.Millisecond,
		SkipNumerator:   0x3000,
		SkipDenominator: 0x7fff,
		NumCPUs:         1,
		PollInterval:    time.Millisecond,
	}
}

// Load parses a TOML file at path over the defaults; fields absent from the
// file keep their default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
