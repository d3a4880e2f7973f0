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
	"fmt"
	"time"

	"github.com/wtsi-hgi/locality/schedulerclient"
)

// TaskSpec is one task the workflow process wants registered and driven to
// completion, per spec §4.F responsibility (ii): drive the batch/DAG
// boundary calls around task-submission.
type TaskSpec struct {
	Label        string
	UID          string
	Inputs       []string
	Outputs      []string
	Requirements schedulerclient.Requirements
}

// pollInterval is how often RunBatch asks the remote scheduler for a task's
// state while waiting for it to leave the submitted state, mirroring
// pollForIP's 100ms cadence in the bring-up protocol.
const pollInterval = 100 * time.Millisecond

const stateSubmitted = "submitted"

// RunBatch submits every task in specs as one batch (StartBatch/StartSubmit/
// EndBatch, rolling over internally once batchSize is exceeded per spec
// §4.D), then polls each task's state until it leaves "submitted", returning
// one TaskReportRow per task in submission order.
func (e *Executor) RunBatch(ctx context.Context, batchSize int, specs []TaskSpec) ([]TaskReportRow, error) {
	if err := e.client.StartBatch(ctx, batchSize); err != nil {
		return nil, fmt.Errorf("executor: starting batch: %w", err)
	}

	handles := make([]schedulerclient.TaskHandle, len(specs))

	for i, spec := range specs {
		handle, err := e.submitOne(ctx, spec)
		if err != nil {
			return nil, err
		}

		handles[i] = handle
	}

	if err := e.client.EndBatch(ctx); err != nil {
		return nil, fmt.Errorf("executor: ending batch: %w", err)
	}

	return e.awaitAll(ctx, specs, handles)
}

func (e *Executor) submitOne(ctx context.Context, spec TaskSpec) (schedulerclient.TaskHandle, error) {
	if err := e.client.StartSubmit(ctx); err != nil {
		return schedulerclient.TaskHandle{}, fmt.Errorf("executor: starting submit for %s: %w", spec.Label, err)
	}

	cfg := schedulerclient.TaskConfig{
		Label:   spec.Label,
		UID:     spec.UID,
		Inputs:  spec.Inputs,
		Outputs: spec.Outputs,
		RAM:     spec.Requirements.RAM,
		Cores:   spec.Requirements.Cores,
		Disk:    spec.Requirements.Disk,
		Time:    spec.Requirements.Time.Seconds(),
		Other:   spec.Requirements.Other,
	}

	handle, err := e.client.RegisterTask(ctx, cfg)
	if err != nil {
		return schedulerclient.TaskHandle{}, fmt.Errorf("executor: registering task %s: %w", spec.Label, err)
	}

	return handle, nil
}

func (e *Executor) awaitAll(ctx context.Context, specs []TaskSpec,
	handles []schedulerclient.TaskHandle,
) ([]TaskReportRow, error) {
	rows := make([]TaskReportRow, len(specs))

	for i, spec := range specs {
		state, err := e.awaitOne(ctx, handles[i].ID)
		if err != nil {
			return nil, fmt.Errorf("executor: awaiting task %s: %w", spec.Label, err)
		}

		rows[i] = TaskReportRow{Label: spec.Label, UID: spec.UID, State: state}
	}

	return rows, nil
}

func (e *Executor) awaitOne(ctx context.Context, taskID string) (string, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		state, err := e.client.GetTaskState(ctx, taskID)
		if err != nil {
			return "", err
		}

		if state.State != stateSubmitted {
			return state.State, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
