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

	. "github.com/smartystreets/goconvey/convey"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/wtsi-hgi/locality/schedulerclient"
)

func TestPodManagerStateMissing(t *testing.T) {
	Convey("Given a namespace with no scheduler pod", t, func() {
		kube := fake.NewSimpleClientset()
		pm := newPodManager(kube, "myns", nil)

		Convey("State reports PodMissing, not an error", func() {
			state, err := pm.State(context.Background(), "sched-pod")
			So(err, ShouldBeNil)
			So(state, ShouldEqual, schedulerclient.PodMissing)
		})
	})
}

func TestPodManagerCreateThenState(t *testing.T) {
	Convey("Given an empty namespace", t, func() {
		kube := fake.NewSimpleClientset()
		pm := newPodManager(kube, "myns", nil)
		pm.spec = PodSpecConfig{Image: "locality-scheduler:latest", Port: 80}

		Convey("Create followed by State reports PodWaiting for a pending pod", func() {
			So(pm.Create(context.Background(), "sched-pod"), ShouldBeNil)

			state, err := pm.State(context.Background(), "sched-pod")
			So(err, ShouldBeNil)
			So(state, ShouldEqual, schedulerclient.PodWaiting)
		})
	})
}

func TestPodManagerDeleteIsIdempotent(t *testing.T) {
	Convey("Given no scheduler pod exists", t, func() {
		kube := fake.NewSimpleClientset()
		pm := newPodManager(kube, "myns", nil)

		Convey("Delete on a missing pod is not an error", func() {
			So(pm.Delete(context.Background(), "sched-pod"), ShouldBeNil)
		})
	})
}

func TestPodManagerIPReportsPodIP(t *testing.T) {
	Convey("Given a running pod with an assigned IP", t, func() {
		kube := fake.NewSimpleClientset(&corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "sched-pod", Namespace: "myns"},
			Status:     corev1.PodStatus{Phase: corev1.PodRunning, PodIP: "10.1.2.3"},
		})
		pm := newPodManager(kube, "myns", nil)

		Convey("IP returns it", func() {
			ip, err := pm.IP(context.Background(), "sched-pod")
			So(err, ShouldBeNil)
			So(ip, ShouldEqual, "10.1.2.3")
		})

		Convey("State reports PodRunning", func() {
			state, err := pm.State(context.Background(), "sched-pod")
			So(err, ShouldBeNil)
			So(state, ShouldEqual, schedulerclient.PodRunning)
		})
	})
}

func TestPodManagerIPErrorsBeforeAssignment(t *testing.T) {
	Convey("Given a pod with no IP yet", t, func() {
		kube := fake.NewSimpleClientset(&corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Name: "sched-pod", Namespace: "myns"},
			Status:     corev1.PodStatus{Phase: corev1.PodPending},
		})
		pm := newPodManager(kube, "myns", nil)

		Convey("IP fails", func() {
			_, err := pm.IP(context.Background(), "sched-pod")
			So(err, ShouldNotBeNil)
		})
	})
}
