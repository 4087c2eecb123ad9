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

package kernel

import "time"

// contextSwitchLocked implements spec.md §4.4. Callers hold k's
// threadMutex. There is no architecture-specific register/stack swap to
// perform here — Go's runtime already multiplexes goroutines onto OS
// threads — so this models exactly the parts of the procedure that are
// meaningful above the architecture layer: time accounting and the
// address-space action table.
func (k *Kernel) contextSwitchLocked(outgoing, incoming *Thread) {
	now := time.Now()

	if outgoing != nil {
		elapsed := now.Sub(outgoing.lastTime)
		switch outgoing.lastTimeType {
		case TimeClassUser:
			outgoing.userTime += elapsed
		case TimeClassKernel:
			outgoing.kernelTime += elapsed
		}
	}

	incoming.lastTime = now
	incoming.lastTimeType = TimeClassKernel

	if outgoing == incoming {
		return
	}

	k.swapAddressSpaceLocked(outgoing, incoming)
}

// swapAddressSpaceLocked applies spec.md §4.4's address-space action table.
// "none" actions do nothing; the two "load target user map" rows activate
// the incoming thread's process address space.
func (k *Kernel) swapAddressSpaceLocked(outgoing, incoming *Thread) {
	incomingUser := incoming.proc != nil && incoming.proc != k.kernelProcess
	if !incomingUser {
		// kernel -> kernel or user -> kernel: kernel map already reachable.
		return
	}

	outgoingSameUser := outgoing != nil &&
		outgoing.proc == incoming.proc &&
		outgoing.proc != k.kernelProcess

	if outgoingSameUser {
		return
	}

	if incoming.proc.aspace != nil {
		incoming.proc.aspace.Activate()
	}
}
