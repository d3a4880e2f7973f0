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

package schedulerclient_test

import (
	"context"
	"testing"
	"time"

	"github.com/inconshreveable/log15"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/wtsi-hgi/locality/schedulerclient"
	"github.com/wtsi-hgi/locality/schedulerclient/schedulerclienttest"
)

func newTestClient(baseURL string) *schedulerclient.Client {
	return schedulerclient.New(baseURL, "myns", "run1", "bin-packing", 5*time.Second, log15.New())
}

func TestClientTaskLifecycle(t *testing.T) {
	Convey("Given a fake scheduler server and a client", t, func() {
		srv := schedulerclienttest.New()
		defer srv.Close()

		c := newTestClient(srv.URL)
		ctx := context.Background()

		Convey("RegisterTask returns a handle and GetTaskState reflects it", func() {
			handle, err := c.RegisterTask(ctx, schedulerclient.TaskConfig{Label: "t1", UID: "u1"})
			So(err, ShouldBeNil)
			So(handle.ID, ShouldNotBeEmpty)

			srv.SetTaskState(handle.ID, "complete")

			state, err := c.GetTaskState(ctx, handle.ID)
			So(err, ShouldBeNil)
			So(state.State, ShouldEqual, "complete")
		})

		Convey("GetDaemonOnNode caches its answer", func() {
			srv.SetDaemon("10.0.0.5:2049")

			daemon, err := c.GetDaemonOnNode(ctx, "node1")
			So(err, ShouldBeNil)
			So(daemon, ShouldEqual, "10.0.0.5:2049")

			srv.SetDaemon("10.0.0.6:2049")

			cached, err := c.GetDaemonOnNode(ctx, "node1")
			So(err, ShouldBeNil)
			So(cached, ShouldEqual, "10.0.0.5:2049")
		})

		Convey("Close marks the client closed and batch calls become no-ops", func() {
			c.Close(ctx)
			So(c.IsClosed(), ShouldBeTrue)
			So(c.StartBatch(ctx, 10), ShouldBeNil)
			So(c.StartSubmit(ctx), ShouldBeNil)
			So(c.EndBatch(ctx), ShouldBeNil)
		})
	})
}

func TestClientBatchRollover(t *testing.T) {
	Convey("Given a batch size of 2", t, func() {
		srv := schedulerclienttest.New()
		defer srv.Close()

		c := newTestClient(srv.URL)
		ctx := context.Background()

		So(c.StartBatch(ctx, 2), ShouldBeNil)

		Convey("A third StartSubmit rolls over to a fresh batch", func() {
			So(c.StartSubmit(ctx), ShouldBeNil)
			So(c.StartSubmit(ctx), ShouldBeNil)
			So(c.StartSubmit(ctx), ShouldBeNil)

			var endCalls, startCalls int

			for _, call := range srv.Calls() {
				switch call.Path {
				case "/scheduler/endBatch/myns/run1":
					endCalls++
				case "/scheduler/startBatch/myns/run1":
					startCalls++
				}
			}

			So(endCalls, ShouldEqual, 1)
			So(startCalls, ShouldEqual, 2)
		})
	})
}

func TestClientInformDAGChangeMonotone(t *testing.T) {
	Convey("Given a client and a growing DAG", t, func() {
		srv := schedulerclienttest.New()
		defer srv.Close()

		c := newTestClient(srv.URL)
		ctx := context.Background()

		v1 := schedulerclient.Vertex{UID: "a", Label: "a"}
		v2 := schedulerclient.Vertex{UID: "b", Label: "b"}
		edge := schedulerclient.Edge{FromUID: "a", ToUID: "b"}

		Convey("Only newly-added vertices and their incident edges are resent", func() {
			So(c.InformDAGChange(ctx, []schedulerclient.Vertex{v1}, nil), ShouldBeNil)
			So(c.InformDAGChange(ctx, []schedulerclient.Vertex{v1, v2}, []schedulerclient.Edge{edge}), ShouldBeNil)

			var vertexCalls, edgeCalls int

			for _, call := range srv.Calls() {
				switch call.Path {
				case "/scheduler/DAG/addVertices/myns/run1":
					vertexCalls++
				case "/scheduler/DAG/addEdges/myns/run1":
					edgeCalls++
				}
			}

			So(vertexCalls, ShouldEqual, 2)
			So(edgeCalls, ShouldEqual, 1)
		})

		Convey("Calling again with the same vertex set resends nothing", func() {
			So(c.InformDAGChange(ctx, []schedulerclient.Vertex{v1}, nil), ShouldBeNil)
			before := len(srv.Calls())
			So(c.InformDAGChange(ctx, []schedulerclient.Vertex{v1}, nil), ShouldBeNil)
			So(len(srv.Calls()), ShouldEqual, before)
		})
	})
}

func TestVertexUIDsAreUnique(t *testing.T) {
	Convey("NewVertexUID never repeats across calls", t, func() {
		a := schedulerclient.NewVertexUID()
		b := schedulerclient.NewVertexUID()
		So(a, ShouldNotEqual, b)
	})
}
