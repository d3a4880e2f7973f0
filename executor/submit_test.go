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

package executor

import (
	"context"
	"testing"
	"time"

	"github.com/inconshreveable/log15"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/wtsi-hgi/locality/schedulerclient"
	"github.com/wtsi-hgi/locality/schedulerclient/schedulerclienttest"
)

func TestRunBatchRegistersAndAwaitsEveryTask(t *testing.T) {
	Convey("Given a fake scheduler and an Executor wired to it", t, func() {
		srv := schedulerclienttest.New()
		defer srv.Close()

		e := &Executor{
			client: schedulerclient.New(srv.URL, "myns", "run1", "bin-packing", 5*time.Second, log15.New()),
			log:    log15.New(),
		}

		srv.SetTaskState("fake-task-id", "complete")

		specs := []TaskSpec{
			{Label: "task-a", UID: "a"},
			{Label: "task-b", UID: "b"},
		}

		Convey("RunBatch drives the batch boundary and reports every task's final state", func() {
			rows, err := e.RunBatch(context.Background(), 10, specs)
			So(err, ShouldBeNil)
			So(rows, ShouldHaveLength, 2)
			So(rows[0].Label, ShouldEqual, "task-a")
			So(rows[0].State, ShouldEqual, "complete")
			So(rows[1].State, ShouldEqual, "complete")

			var sawStart, sawEnd bool

			for _, call := range srv.Calls() {
				if call.Path == "/scheduler/startBatch/myns/run1" {
					sawStart = true
				}

				if call.Path == "/scheduler/endBatch/myns/run1" {
					sawEnd = true
				}
			}

			So(sawStart, ShouldBeTrue)
			So(sawEnd, ShouldBeTrue)
		})
	})
}
