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

// Command schedctl is a non-core debug/introspection CLI for the scheduler
// core: it boots a Kernel against the package's fake VM/ELF collaborators,
// runs a small demo workload, and dumps thread/process state through the
// same GetInfo/GetNextInfo calls the real syscall surface uses. It is not
// part of the scheduler itself (spec.md §1 Non-goals: no CLI/debug glue in
// scope for the core), only a harness for poking at it.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/oskern/schedcore/pkg/config"
	elffake "github.com/oskern/schedcore/pkg/elfload/fake"
	"github.com/oskern/schedcore/pkg/ioctx"
	"github.com/oskern/schedcore/pkg/kernel"
	"github.com/oskern/schedcore/pkg/semiface"
	"github.com/oskern/schedcore/pkg/timeriface"
	vmfake "github.com/oskern/schedcore/pkg/vmiface/fake"
)

var log = logrus.New()

// newDemoKernel builds a Kernel wired to the fake VM/ELF collaborators and a
// real semaphore set and timer implementation, the same combination the
// package's own tests use.
func newDemoKernel(numCPUs int) *kernel.Kernel {
	cfg := config.Default()
	cfg.NumCPUs = numCPUs
	return kernel.New(cfg, kernel.Collaborators{
		AddressSpaces: vmfake.NewAddressSpaces(),
		Semaphores:    semiface.NewSet(),
		Timers:        timeriface.New(),
		IOContexts:    ioctx.New(),
		Loader:        elffake.NewLoader(),
	})
}

var schedctlCmd = &cobra.Command{
	Use:   "schedctl",
	Short: "Debug and introspection CLI for the scheduler core",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

var demoCPUs int
var demoDuration time.Duration

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a small multi-process demo workload and report what ran",
	Run: func(cmd *cobra.Command, args []string) {
		log.Infof("booting kernel with %d cpu(s)", demoCPUs)
		k := newDemoKernel(demoCPUs)

		ctx, cancel := context.WithTimeout(context.Background(), demoDuration)
		defer cancel()
		k.StartAll(ctx)

		pid, err := k.CreateProcess(k.KernelProcess(), "demo-worker", nil, kernel.CreateProcessNewSession, []byte{})
		if err != nil {
			log.Fatalf("create_process: %v", err)
		}
		log.Infof("spawned process %d", pid)

		<-ctx.Done()

		dumpProcesses(k)
		dumpThreads(k)
	},
}

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List every thread the kernel currently knows about",
	Run: func(cmd *cobra.Command, args []string) {
		k := newDemoKernel(1)
		dumpThreads(k)
	},
}

var threadCmd = &cobra.Command{
	Use:   "thread <tid>",
	Short: "Show one thread's point-in-time info",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		tid, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatalf("invalid tid %q: %v", args[0], err)
		}
		k := newDemoKernel(1)
		info, err := k.GetInfo(kernel.ThreadID(tid))
		if err != nil {
			log.Fatalf("get_info(%d): %v", tid, err)
		}
		fmt.Printf("%+v\n", info)
	},
}

func dumpThreads(k *kernel.Kernel) {
	cookie := kernel.ThreadID(0)
	log.Info("threads:")
	for {
		info, err := k.GetNextInfo(cookie, 0)
		if err != nil {
			break
		}
		cookie = info.ID
		fmt.Printf("  tid=%-4d pid=%-4d name=%-16s state=%-16s prio=%-4d cpu=%d\n",
			info.ID, info.ProcessID, info.Name, info.State, info.Priority, info.CPU)
	}
}

func dumpProcesses(k *kernel.Kernel) {
	cookie := kernel.ProcessID(0)
	log.Info("processes:")
	for {
		info, err := k.GetNextProcessInfo(cookie)
		if err != nil {
			break
		}
		cookie = info.ID
		fmt.Printf("  pid=%-4d name=%-16s state=%-8s threads=%d pgid=%d sid=%d\n",
			info.ID, info.Name, info.State, info.NumThreads, info.PGID, info.SID)
	}
}

func main() {
	demoCmd.Flags().IntVar(&demoCPUs, "cpus", 2, "number of CPUs to simulate")
	demoCmd.Flags().DurationVar(&demoDuration, "duration", 500*time.Millisecond, "how long to let the demo run")

	schedctlCmd.AddCommand(demoCmd)
	schedctlCmd.AddCommand(threadsCmd)
	schedctlCmd.AddCommand(threadCmd)

	if err := schedctlCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
