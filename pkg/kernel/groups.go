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

import (
	"gvisor.dev/gvisor/pkg/sync"

	"github.com/oskern/schedcore/pkg/ilist"
)

// ProcessGroup is a POSIX process group: a set of processes sharing a pgid,
// all belonging to the same Session (spec.md §4.2).
type ProcessGroup struct {
	id      ProcessGroupID
	session *Session
	leader  *Process

	sessionLink ilist.Entry[ProcessGroup]
	members     *ilist.List[Process]
}

// Session is a POSIX session: a set of process groups that share a
// controlling terminal concept, rooted at the session leader (spec.md §4.2).
// The core models the grouping relationships only; terminal ownership is
// out of scope (spec.md §1).
type Session struct {
	id     SessionID
	leader *Process
	groups *ilist.List[ProcessGroup]
}

func groupMemberLinker(p *Process) *ilist.Entry[Process] { return &p.groupLink }

func sessionGroupLinker(g *ProcessGroup) *ilist.Entry[ProcessGroup] { return &g.sessionLink }

// groupTables.mu guards the kernel's pgid/sid tables and every
// ProcessGroup's and Session's membership lists. It sits above processMutex
// in the lock order: a caller holding mu may acquire a process's
// processMutex (SetPGID, SetSID, joinGroupAndSession and isOrphanedLocked
// all do), never the reverse.
type groupTables struct {
	mu       sync.Mutex
	groups   map[ProcessGroupID]*ProcessGroup
	sessions map[SessionID]*Session
}

func newGroupTables() *groupTables {
	return &groupTables{
		groups:   make(map[ProcessGroupID]*ProcessGroup),
		sessions: make(map[SessionID]*Session),
	}
}

// SetPGID implements spec.md §4.2 setpgid: moves p into the process group
// pgid, creating that group within p's session if it does not exist yet (p
// leads a newly created group only when pgid equals p's id). An existing
// group must belong to p's session.
func (k *Kernel) SetPGID(p *Process, pgid ProcessGroupID) error {
	k.groups.mu.Lock()
	defer k.groups.mu.Unlock()

	p.Lock()
	defer p.Unlock()

	sid := p.sid
	g, ok := k.groups.groups[pgid]
	if !ok {
		sess, ok := k.groups.sessions[sid]
		if !ok {
			return ErrInvalidArgs
		}
		g = &ProcessGroup{id: pgid, session: sess, members: ilist.NewList(groupMemberLinker)}
		if ProcessID(pgid) == p.id {
			g.leader = p
		}
		k.groups.groups[pgid] = g
		sess.groups.PushBack(g)
	} else if g.session.id != sid {
		return ErrInvalidArgs
	}

	if p.group != nil {
		p.group.members.Remove(p)
	}
	p.group = g
	p.pgid = pgid
	g.members.PushBack(p)
	return nil
}

// GetPGID implements spec.md §4.2 getpgid.
func (k *Kernel) GetPGID(p *Process) ProcessGroupID {
	p.Lock()
	defer p.Unlock()
	return p.pgid
}

// SetSID implements spec.md §4.2 setsid: p becomes the leader of a brand
// new session and a brand new process group within it. Fails if p is
// already a process group leader.
func (k *Kernel) SetSID(p *Process) (SessionID, error) {
	k.groups.mu.Lock()
	defer k.groups.mu.Unlock()

	p.Lock()
	defer p.Unlock()

	if p.group != nil && p.group.leader == p {
		return 0, ErrInvalidArgs
	}

	sid := SessionID(p.id)
	sess := &Session{id: sid, leader: p, groups: ilist.NewList(sessionGroupLinker)}
	k.groups.sessions[sid] = sess

	pgid := ProcessGroupID(p.id)
	g := &ProcessGroup{id: pgid, session: sess, leader: p, members: ilist.NewList(groupMemberLinker)}
	k.groups.groups[pgid] = g
	sess.groups.PushBack(g)

	if p.group != nil {
		p.group.members.Remove(p)
	}
	p.group = g
	p.pgid = pgid
	p.sid = sid
	g.members.PushBack(p)
	return sid, nil
}

// sendGroupSignalLocked delivers sig to every member of g. Callers hold
// k.groups.mu; each member's own processMutex is taken in turn (groups.mu
// may be held while acquiring processMutex, the same order every other
// groups.mu holder uses).
func (k *Kernel) sendGroupSignalLocked(g *ProcessGroup, sig Signals) {
	for p := g.members.Front(); p != nil; p = g.members.Next(p) {
		k.sendProcessSignal(p, sig)
	}
}

// SendPGroupSignal implements spec.md §4.2 send_pgrp_signal.
func (k *Kernel) SendPGroupSignal(pgid ProcessGroupID, sig Signals) error {
	k.groups.mu.Lock()
	g, ok := k.groups.groups[pgid]
	if !ok {
		k.groups.mu.Unlock()
		return ErrNotFound
	}
	var members []*Process
	for p := g.members.Front(); p != nil; p = g.members.Next(p) {
		members = append(members, p)
	}
	k.groups.mu.Unlock()

	for _, p := range members {
		k.sendProcessSignal(p, sig)
	}
	return nil
}

// SendSessionSignal implements spec.md §4.2 send_session_signal.
func (k *Kernel) SendSessionSignal(sid SessionID, sig Signals) error {
	k.groups.mu.Lock()
	sess, ok := k.groups.sessions[sid]
	if !ok {
		k.groups.mu.Unlock()
		return ErrNotFound
	}
	var members []*Process
	for g := sess.groups.Front(); g != nil; g = sess.groups.Next(g) {
		for p := g.members.Front(); p != nil; p = g.members.Next(p) {
			members = append(members, p)
		}
	}
	k.groups.mu.Unlock()

	for _, p := range members {
		k.sendProcessSignal(p, sig)
	}
	return nil
}

// isOrphanedLocked implements the orphaned-process-group check spec.md §4.2
// describes: a group is orphaned once no member's parent is in a different
// group within the same session (every member's parent is either in the
// group itself or outside the session entirely is NOT sufficient — the
// defining condition is that no parent belongs to a different group of the
// same session). Caller holds k.groups.mu and every relevant processMutex
// is taken internally.
func (k *Kernel) isOrphanedLocked(g *ProcessGroup) bool {
	for p := g.members.Front(); p != nil; p = g.members.Next(p) {
		p.Lock()
		parent := p.parent
		p.Unlock()
		if parent == nil {
			continue
		}
		parent.Lock()
		parentGroup := parent.group
		parent.Unlock()
		if parentGroup != nil && parentGroup != g && parentGroup.session == g.session {
			return false
		}
	}
	return true
}
