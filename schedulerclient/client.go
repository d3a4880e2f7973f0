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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/VividCortex/ewma"
	"github.com/inconshreveable/log15"
	cache "github.com/patrickmn/go-cache"

	"github.com/wtsi-hgi/locality/internal"
)

// daemonCacheTTL is how long a getDaemonOnNode answer is trusted before a
// retrying LocalPath will re-query it; short enough that daemon
// re-scheduling during an FTP retry loop is still picked up.
const daemonCacheTTL = 15 * time.Second

// Client is the workflow process's single shared handle on the remote
// scheduler. All its methods are safe under concurrent invocation from
// multiple goroutines, per the concurrency model in spec §5.
type Client struct {
	BaseURL   string
	Namespace string
	Run       string
	Strategy  string

	// Port is the scheduler pod's listening port, used by the bring-up
	// protocol to build the pod's in-cluster DNS URL (spec §4.D step 3).
	// Defaults to 80; set it before the first EnsureRegistered call if the
	// scheduler pod listens on a different port.
	Port int32

	httpClient *http.Client
	log        log15.Logger

	registerOnce sync.Once
	registerErr  error

	closedMu sync.Mutex
	closed   bool

	dagMu          sync.Mutex
	submittedCount int

	batchMu    sync.Mutex
	batchState BatchState

	daemonCache *cache.Cache
	latency     ewma.MovingAverage
}

// New creates a Client bound to one run's remote scheduler endpoint. Bring-up
// (creating/finding the scheduler pod and calling registerScheduler) happens
// separately via EnsureRegistered, since it needs a PodManager.
func New(baseURL, namespace, run, strategy string, timeout time.Duration, logger log15.Logger) *Client {
	return &Client{
		BaseURL:     baseURL,
		Namespace:   namespace,
		Run:         run,
		Strategy:    strategy,
		Port:        defaultSchedulerPort,
		httpClient:  &http.Client{Timeout: timeout},
		log:         logger.New("component", "schedulerclient"),
		daemonCache: cache.New(daemonCacheTTL, daemonCacheTTL*2),
		latency:     ewma.NewMovingAverage(),
	}
}

// defaultSchedulerPort is the bring-up protocol's assumed scheduler pod port
// when nothing more specific is configured.
const defaultSchedulerPort = 80

// IsClosed reports whether Close has already been called.
func (c *Client) IsClosed() bool {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	return c.closed
}

// Close tells the remote scheduler the run is over. Best-effort: failures
// are logged, not returned, and every batch call after this silently becomes
// a no-op per spec §4.D.
func (c *Client) Close(ctx context.Context) {
	c.closedMu.Lock()
	c.closed = true
	c.closedMu.Unlock()

	path := fmt.Sprintf("/scheduler/%s/%s", c.Namespace, c.Run)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		c.log.Warn("closeScheduler failed", "err", err)
	}
}

// GetTaskState asks the remote scheduler for a task's current state.
func (c *Client) GetTaskState(ctx context.Context, taskID string) (TaskState, error) {
	var state TaskState
	path := fmt.Sprintf("/scheduler/taskstate/%s/%s/%s", c.Namespace, c.Run, taskID)
	err := c.do(ctx, http.MethodGet, path, nil, &state)

	return state, err
}

// RegisterTask registers a task's input/output declarations and resource
// requirements, returning the handle used to query its state later.
func (c *Client) RegisterTask(ctx context.Context, cfg TaskConfig) (TaskHandle, error) {
	var handle TaskHandle
	path := fmt.Sprintf("/scheduler/registerTask/%s/%s", c.Namespace, c.Run)
	err := c.do(ctx, http.MethodPut, path, cfg, &handle)

	return handle, err
}

// GetFileLocation asks the remote scheduler where virtualPath currently
// lives.
func (c *Client) GetFileLocation(ctx context.Context, virtualPath string) (FileLocation, error) {
	var loc FileLocation
	path := fmt.Sprintf("/file/%s/%s?path=%s", c.Namespace, c.Run, url.QueryEscape(virtualPath))

	start := time.Now()
	err := c.do(ctx, http.MethodGet, path, nil, &loc)
	c.latency.Add(float64(time.Since(start).Milliseconds()))

	return loc, err
}

// AddFileLocation reports that path now physically lives at the current
// node, either as a brand new entry (overwrite=false) or updating one this
// process previously downloaded or mutated (overwrite=true). wrapperID must
// be the LocationWrapperID echoed back from the GetFileLocation call that
// led to this update, so the scheduler can reject stale writes.
func (c *Client) AddFileLocation(ctx context.Context, path string, size int64, mtime time.Time,
	wrapperID, node string, overwrite bool,
) error {
	if c.IsClosed() {
		return nil
	}

	verb := "add"
	if overwrite {
		verb = "overwrite"
	}

	urlPath := fmt.Sprintf("/file/location/%s/%s/%s", verb, c.Namespace, c.Run)
	if node != "" {
		urlPath += "/" + node
	}

	body := addFileLocationBody{
		Path:              path,
		Size:              size,
		Timestamp:         mtime.Unix(),
		LocationWrapperID: wrapperID,
		Node:              node,
	}

	return c.do(ctx, http.MethodPost, urlPath, body, nil)
}

// GetDaemonOnNode asks the remote scheduler which daemon address currently
// exposes node's local scratch storage, caching the answer briefly.
func (c *Client) GetDaemonOnNode(ctx context.Context, node string) (string, error) {
	if v, found := c.daemonCache.Get(node); found {
		return v.(string), nil
	}

	var daemon string
	path := fmt.Sprintf("/daemon/%s/%s/%s", c.Namespace, c.Run, node)

	if err := c.do(ctx, http.MethodGet, path, nil, &daemon); err != nil {
		return "", err
	}

	c.daemonCache.Set(node, daemon, cache.DefaultExpiration)

	return daemon, nil
}

// do performs one HTTP/JSON round trip. body, if non-nil, is marshalled as
// the request body; out, if non-nil, receives the unmarshalled response
// body. Any non-200 response is a fatal error for the call, per spec §7.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("schedulerclient: encoding request: %w", err)
		}

		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("schedulerclient: building request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("schedulerclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)

		return fmt.Errorf("schedulerclient: %s %s: unexpected status %d: %s",
			method, path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("schedulerclient: decoding response from %s %s: %w", method, path, err)
	}

	return nil
}

// MeanLatencyMillis returns the exponentially-weighted moving average of
// GetFileLocation round-trip latency, for diagnosing a slow-to-respond
// scheduler.
func (c *Client) MeanLatencyMillis() float64 {
	return c.latency.Value()
}

// retryPolicyForBringUp is the fixed "50 attempts, 3s apart" policy mandated
// by the bring-up protocol.
func retryPolicyForBringUp() internal.RetryPolicy {
	return internal.FixedBringUpPolicy(50, 3*time.Second)
}
