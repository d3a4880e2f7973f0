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

package internal_test

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wtsi-hgi/locality/internal"
)

var errBoom = errors.New("boom")

func TestRetrySucceedsWithoutExhaustingAttempts(t *testing.T) {
	Convey("Given a function that succeeds on its second attempt", t, func() {
		policy := internal.ExponentialFTPPolicy(6)

		calls := 0
		err := internal.Retry(policy, nil, func(attempt int) error {
			calls++
			if attempt == 1 {
				return nil
			}

			return errBoom
		})

		Convey("Retry stops as soon as fn succeeds", func() {
			So(err, ShouldBeNil)
			So(calls, ShouldEqual, 2)
		})
	})
}

func TestRetryStopsEarlyWhenShouldRetryRefuses(t *testing.T) {
	Convey("Given a shouldRetry that always refuses", t, func() {
		policy := internal.FixedBringUpPolicy(50, time.Millisecond)

		calls := 0
		err := internal.Retry(policy, func(error) bool { return false }, func(int) error {
			calls++

			return errBoom
		})

		Convey("Retry gives up after the first failed attempt", func() {
			So(err, ShouldEqual, errBoom)
			So(calls, ShouldEqual, 1)
		})
	})
}

func TestRetryExhaustsAllAttempts(t *testing.T) {
	Convey("Given a function that always fails", t, func() {
		policy := internal.ExponentialFTPPolicy(3)

		calls := 0
		err := internal.Retry(policy, nil, func(int) error {
			calls++

			return errBoom
		})

		Convey("Retry tries exactly MaxAttempts times", func() {
			So(err, ShouldEqual, errBoom)
			So(calls, ShouldEqual, 3)
		})
	})
}
