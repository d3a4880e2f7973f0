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

package schedulerclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/wtsi-hgi/locality/internal"
)

// PodState is the lifecycle state of the scheduler pod, as told to us by the
// external Kubernetes client.
type PodState string

// The pod states the bring-up protocol distinguishes between.
const (
	PodTerminated PodState = "terminated"
	PodRunning    PodState = "running"
	PodWaiting    PodState = "waiting"
	PodMissing    PodState = "missing"
)

// PodManager is the slice of the Kubernetes API client the bring-up protocol
// needs. The Kubernetes client itself (pod/job/daemonset/configmap CRUD) is
// an external collaborator out of this subsystem's scope; the executor glue
// package provides the concrete client-go backed implementation.
type PodManager interface {
	State(ctx context.Context, podName string) (PodState, error)
	Delete(ctx context.Context, podName string) error
	Create(ctx context.Context, podName string) error
	IP(ctx context.Context, podName string) (string, error)
}

// ErrUnexpectedPodState is returned when the Kubernetes client reports a pod
// state bring-up doesn't know how to handle.
var ErrUnexpectedPodState = errors.New("schedulerclient: unexpected pod state")

// EnsureRegistered runs the bring-up protocol exactly once, however many
// goroutines call it concurrently: find-or-create the scheduler pod, wait for
// it to leave PodWaiting, resolve its pod IP into a cluster-DNS URL, then
// call registerScheduler with retry, finally pushing the current DAG
// snapshot. Safe to call repeatedly; only the first call does any work.
func (c *Client) EnsureRegistered(ctx context.Context, podName string, pm PodManager,
	dagVertices []Vertex, dagEdges []Edge,
) error {
	c.registerOnce.Do(func() {
		c.registerErr = c.bringUp(ctx, podName, pm, dagVertices, dagEdges)
	})

	return c.registerErr
}

func (c *Client) bringUp(ctx context.Context, podName string, pm PodManager,
	dagVertices []Vertex, dagEdges []Edge,
) error {
	if err := c.ensurePod(ctx, podName, pm); err != nil {
		return err
	}

	ip, err := c.pollForIP(ctx, podName, pm)
	if err != nil {
		return err
	}

	c.BaseURL = dnsURLFromIP(ip, c.Namespace, c.Port)

	if err := c.registerWithRetry(ctx); err != nil {
		return err
	}

	return c.InformDAGChange(ctx, dagVertices, dagEdges)
}

// ensurePod implements step 1-2 of the bring-up protocol: reuse a
// running/waiting pod, recreate a terminated one, create a missing one.
func (c *Client) ensurePod(ctx context.Context, podName string, pm PodManager) error {
	state, err := pm.State(ctx, podName)
	if err != nil {
		return fmt.Errorf("schedulerclient: checking scheduler pod state: %w", err)
	}

	switch state {
	case PodRunning, PodWaiting:
		return nil
	case PodTerminated:
		if err := pm.Delete(ctx, podName); err != nil {
			return fmt.Errorf("schedulerclient: deleting terminated scheduler pod: %w", err)
		}

		return pm.Create(ctx, podName)
	case PodMissing:
		return pm.Create(ctx, podName)
	default:
		return fmt.Errorf("%w: %q", ErrUnexpectedPodState, state)
	}
}

// pollForIP polls pod state every 100ms until it leaves PodWaiting, then
// resolves its IP.
func (c *Client) pollForIP(ctx context.Context, podName string, pm PodManager) (string, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		state, err := pm.State(ctx, podName)
		if err != nil {
			return "", fmt.Errorf("schedulerclient: polling scheduler pod: %w", err)
		}

		if state != PodWaiting {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}

	return pm.IP(ctx, podName)
}

// dnsURLFromIP builds the pod's in-cluster DNS URL on the given port, e.g.
// for IP 10.1.2.3, namespace "wr" and port 80 this is
// http://10-1-2-3.wr.pod.cluster.local:80.
func dnsURLFromIP(ip, namespace string, port int32) string {
	dashed := strings.ReplaceAll(ip, ".", "-")

	return fmt.Sprintf("http://%s.%s.pod.cluster.local:%d", dashed, namespace, port)
}

// registerWithRetry calls registerScheduler, retrying on connection refusal
// up to the bring-up policy's attempt count. Unknown-host and other I/O
// errors are fatal immediately.
func (c *Client) registerWithRetry(ctx context.Context) error {
	policy := retryPolicyForBringUp()

	return internal.Retry(policy, isConnectionRefused, func(attempt int) error {
		path := fmt.Sprintf("/scheduler/registerScheduler/%s/%s/%s", c.Namespace, c.Run, c.Strategy)
		cfg := RunConfig{DNS: c.BaseURL, Strategy: c.Strategy}

		err := c.do(ctx, "PUT", path, cfg, nil)
		if err != nil {
			c.log.Debug("registerScheduler attempt failed", "attempt", attempt, "err", err)
		}

		return err
	})
}

// isConnectionRefused decides whether registerWithRetry should keep trying:
// connection refusal is transient (the scheduler pod may not be listening
// yet), an unknown host or anything else is fatal.
func isConnectionRefused(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return strings.Contains(opErr.Err.Error(), "connection refused")
	}

	return strings.Contains(err.Error(), "connection refused")
}
