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
	"fmt"
	"strconv"
)

// StartBatch resets the batch counter and opens a new batching window on the
// remote scheduler. A no-op once the client is closed.
func (c *Client) StartBatch(ctx context.Context, batchSize int) error {
	if c.IsClosed() {
		return nil
	}

	c.batchMu.Lock()
	defer c.batchMu.Unlock()

	c.batchState = BatchState{TasksInBatch: 0, BatchSize: batchSize}

	return c.startBatchCall(ctx)
}

// StartSubmit records one task submission against the current batch, rolling
// over to a fresh batch (endBatch then startBatch) if the count would exceed
// BatchSize. A no-op once the client is closed.
func (c *Client) StartSubmit(ctx context.Context) error {
	if c.IsClosed() {
		return nil
	}

	c.batchMu.Lock()
	defer c.batchMu.Unlock()

	c.batchState.TasksInBatch++

	if c.batchState.TasksInBatch > c.batchState.BatchSize {
		if err := c.endBatchCall(ctx, c.batchState.BatchSize); err != nil {
			return err
		}

		if err := c.startBatchCall(ctx); err != nil {
			return err
		}

		c.batchState.TasksInBatch = 1
	}

	return nil
}

// EndBatch flushes whatever remains of the current batch. A no-op once the
// client is closed.
func (c *Client) EndBatch(ctx context.Context) error {
	if c.IsClosed() {
		return nil
	}

	c.batchMu.Lock()
	defer c.batchMu.Unlock()

	return c.endBatchCall(ctx, c.batchState.TasksInBatch)
}

func (c *Client) startBatchCall(ctx context.Context) error {
	path := fmt.Sprintf("/scheduler/startBatch/%s/%s", c.Namespace, c.Run)

	return c.do(ctx, "POST", path, nil, nil)
}

func (c *Client) endBatchCall(ctx context.Context, count int) error {
	path := fmt.Sprintf("/scheduler/endBatch/%s/%s", c.Namespace, c.Run)

	return c.do(ctx, "POST", path, strconv.Itoa(count), nil)
}
