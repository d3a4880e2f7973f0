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

// Package ftppool protects a node daemon's FTP listener from being
// overwhelmed by concurrent fetches from the same workflow process, handing
// out a bounded number of connection slots per daemon address.
package ftppool

import (
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
)

// ErrOverCapacity is returned by Request when numSlots exceeds the Pool's
// configured maximum.
type ErrOverCapacity struct {
	Daemon string
}

func (e ErrOverCapacity) Error() string {
	return "ftppool: " + e.Daemon + ": requested more slots than the pool allows"
}

// Pool hands out connection slots against one daemon address, granting them
// in request order once capacity is available.
type Pool struct {
	Daemon         string
	maxSlots       int
	usedSlots      int
	delayBetween   time.Duration
	releaseTimeout time.Duration
	requests       map[Receipt]*request
	pending        []*request
	lastProcess    time.Time
	reprocessing   bool
	mu             sync.RWMutex
}

// NewPool creates a Pool for the given daemon address.
//
// delayBetween is the minimum delay between successive grants, to avoid
// opening a burst of control connections against a daemon that's still
// accepting them from a previous burst.
//
// maxSlots is the maximum number of concurrent FTP connections this process
// will hold open against the daemon.
//
// releaseTimeout is how long a granted slot is held before being reclaimed
// automatically if the holder stops calling Touch().
func NewPool(daemon string, delayBetween time.Duration, maxSlots int, releaseTimeout time.Duration) *Pool {
	return &Pool{
		Daemon:         daemon,
		maxSlots:       maxSlots,
		delayBetween:   delayBetween,
		releaseTimeout: releaseTimeout,
		requests:       make(map[Receipt]*request),
	}
}

// Request queues a request for numSlots connection slots, returning a
// Receipt to pass to WaitUntilGranted, then Touch periodically, then
// Release.
func (p *Pool) Request(numSlots int, autoRelease ...time.Duration) (Receipt, error) {
	if numSlots > p.maxSlots {
		return Receipt(""), ErrOverCapacity{Daemon: p.Daemon}
	}

	r := &request{
		id:        Receipt(uuid.NewV4().String()),
		grantedCh: make(chan bool, 1),
		releaseCh: make(chan bool, 1),
		touchCh:   make(chan bool, 1),
		slots:     numSlots,
	}

	if len(autoRelease) == 1 {
		r.autoRelease = autoRelease[0]
	} else {
		r.autoRelease = 8760 * time.Hour
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = append(p.pending, r)
	p.requests[r.id] = r

	if p.lastProcess.IsZero() && len(p.pending) == 1 {
		go p.process()
	} else {
		go p.reprocess()
	}

	return r.id, nil
}

// WaitUntilGranted blocks until receipt's slots have been granted. Returns
// false if the request has already timed out or the receipt is unknown.
func (p *Pool) WaitUntilGranted(receipt Receipt) bool {
	p.mu.RLock()
	r, found := p.requests[receipt]
	p.mu.RUnlock()

	if found {
		return r.waitUntilGranted()
	}

	return false
}

// Touch prevents receipt's granted slots from being reclaimed by the
// releaseTimeout. Call this periodically while the FTP transfer is ongoing.
func (p *Pool) Touch(receipt Receipt) {
	p.mu.RLock()
	r, found := p.requests[receipt]
	p.mu.RUnlock()

	if found {
		r.touch()
	}
}

// Release returns receipt's slots to the pool. Always call this when done,
// unless an autoRelease duration was given to Request.
func (p *Pool) Release(receipt Receipt) {
	p.mu.RLock()
	r, found := p.requests[receipt]
	p.mu.RUnlock()

	if found {
		r.release()
	}
}

// process grants the oldest pending request if capacity allows, then
// schedules the release/reprocess bookkeeping for it.
func (p *Pool) process() {
	p.mu.Lock()
	defer p.mu.Unlock()

	pendingLen := len(p.pending)
	if p.usedSlots == p.maxSlots || pendingLen == 0 {
		return
	}

	r := p.pending[0]
	if p.maxSlots-p.usedSlots < r.slots {
		return
	}

	p.pending = p.pending[1:]
	p.usedSlots += r.slots
	p.lastProcess = time.Now()
	r.grantedCh <- true

	go p.manageRelease(r)

	if pendingLen > 1 {
		go p.reprocess()
	}
}

// manageRelease waits for the holder to release, time out, or auto-release,
// then returns the slots to the pool and kicks process() again.
func (p *Pool) manageRelease(r *request) {
	auto := time.After(r.autoRelease)

	for {
		limit := time.After(p.releaseTimeout)

		select {
		case <-r.releaseCh:
		case <-limit:
			r.finished()
		case <-auto:
			r.finished()
		case <-r.touchCh:
			continue
		}

		p.mu.Lock()
		p.usedSlots -= r.slots
		delete(p.requests, r.id)

		if len(p.pending) > 0 {
			p.mu.Unlock()
			p.reprocess()
		} else {
			p.mu.Unlock()
		}

		return
	}
}

// reprocess calls process() after at least delayBetween has passed since the
// last grant, coalescing concurrent callers into a single reprocessing pass.
func (p *Pool) reprocess() {
	p.mu.Lock()
	if p.reprocessing {
		p.mu.Unlock()

		return
	}

	p.reprocessing = true
	since := time.Since(p.lastProcess)

	if since < p.delayBetween {
		remaining := p.delayBetween - since
		p.mu.Unlock()
		<-time.After(remaining)
		p.mu.Lock()
	}

	p.reprocessing = false
	p.mu.Unlock()
	p.process()
}
