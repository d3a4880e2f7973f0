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

package internal

import (
	"time"

	"github.com/jpillora/backoff"
)

// RetryPolicy describes how a blocking remote operation should be retried.
// It is shared by the scheduler bring-up path and the LocalPath FTP fetch
// path, as per design note "Retry policies".
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Factor         float64
}

// FixedBringUpPolicy retries a fixed number of times with a constant delay,
// matching the bring-up protocol's "up to 50 attempts, 3s backoff".
func FixedBringUpPolicy(maxAttempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, InitialBackoff: delay, Factor: 1}
}

// ExponentialFTPPolicy retries with 2^trial millisecond delays, matching the
// LocalPath FTP acquisition policy.
func ExponentialFTPPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, InitialBackoff: time.Millisecond, Factor: 2}
}

// Backoff builds a jpillora/backoff.Backoff configured from this policy, with
// no maximum cap beyond the number of attempts the caller will make.
func (p RetryPolicy) Backoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    p.InitialBackoff,
		Max:    p.InitialBackoff * time.Duration(1<<uint(p.MaxAttempts)),
		Factor: p.Factor,
		Jitter: false,
	}
}

// Retry calls fn up to p.MaxAttempts times, sleeping according to the policy
// between attempts, stopping early if fn returns a nil error or shouldRetry
// returns false for the error it did return.
func Retry(p RetryPolicy, shouldRetry func(error) bool, fn func(attempt int) error) error {
	b := p.Backoff()

	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err = fn(attempt)
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		if attempt < p.MaxAttempts-1 {
			time.Sleep(b.Duration())
		}
	}

	return err
}
