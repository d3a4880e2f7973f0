// Copyright © 2024 Genome Research Limited
// Author: Sendu Bala <sb10@sanger.ac.uk>.
//
//  This file is part of wr.
//
//  wr is free software: you can redistribute it and/or modify
//  it under the terms of the GNU Lesser General Public License as published by
//  the Free Software Foundation, either version 3 of the License, or
//  (at your option) any later version.
//
//  wr is distributed in the hope that it will be useful,
//  but WITHOUT ANY WARRANTY; without even the implied warranty of
//  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
//  GNU Lesser General Public License for more details.
//
//  You should have received a copy of the GNU Lesser General Public License
//  along with wr. If not, see <http://www.gnu.org/licenses/>.

package ftppool

// This file implements request and Receipt: the bookkeeping behind one
// caller's hold on a slot in a daemon's connection pool.

import (
	"sync"
	"time"
)

// Receipt identifies one outstanding request for a connection slot.
type Receipt string

// request tracks one caller's desire to hold a connection slot against a
// particular daemon's Pool.
type request struct {
	id          Receipt
	slots       int
	grantedCh   chan bool
	releaseCh   chan bool
	touchCh     chan bool
	autoRelease time.Duration
	active      bool
	done        bool
	mu          sync.Mutex
}

// waitUntilGranted blocks until the Pool that created us sends on our
// grantedCh. Returns false if already granted or finished().
func (r *request) waitUntilGranted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active || r.done {
		return false
	}

	r.active = true
	<-r.grantedCh

	return true
}

// touch sends on our touchCh, read by the Pool that granted our slot, to
// reset the release timer so a slow FTP transfer isn't pre-empted.
func (r *request) touch() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active || r.done {
		return
	}

	r.touchCh <- true
}

// release gives the slot back, for use by another caller queued against the
// same daemon.
func (r *request) release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active || r.done {
		return
	}

	r.done = true
	r.releaseCh <- true
}

// finished stops the other methods from doing anything further.
func (r *request) finished() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
}
