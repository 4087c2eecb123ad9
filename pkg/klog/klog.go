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

// Package klog re-exports the core's logging calls so every package in the
// scheduler logs through gvisor.dev/gvisor/pkg/log, the way the rest of the
// corpus does (runsc/sandbox, runsc/boot), rather than reaching for the
// standard library's log package.
package klog

import "gvisor.dev/gvisor/pkg/log"

// Debugf logs at debug level.
func Debugf(format string, v ...any) { log.Debugf(format, v...) }

// Infof logs at info level.
func Infof(format string, v ...any) { log.Infof(format, v...) }

// Warningf logs at warning level.
func Warningf(format string, v ...any) { log.Warningf(format, v...) }
