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

// Package schedulerclient is the HTTP/JSON client the workflow process uses
// to talk to the in-cluster remote scheduler: registering the run, streaming
// the DAG, registering tasks, and asking where files currently live.
package schedulerclient

import (
	"time"

	"github.com/gofrs/uuid"
)

// Requirements describes the resources a task needs, echoed to the remote
// scheduler when the task is registered.
type Requirements struct {
	RAM   int
	Time  time.Duration
	Cores float64
	Disk  int
	Other map[string]string
}

// Symlink is one entry of a FileLocation's symlink materialisation list.
type Symlink struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// FileLocation is the remote scheduler's answer to "where does this file
// live right now".
type FileLocation struct {
	Path              string    `json:"path"`
	Node              string    `json:"node"`
	Daemon            string    `json:"daemon"`
	SameAsEngine      bool      `json:"same_as_engine"`
	LocationWrapperID string    `json:"location_wrapper_id"`
	Symlinks          []Symlink `json:"symlinks"`
}

// Vertex is one node of the DAG projection sent to the remote scheduler.
type Vertex struct {
	Label string `json:"label"`
	Type  string `json:"type"`
	UID   string `json:"uid"`
}

// NewVertexUID generates a fresh vertex uid for a caller that has no
// pre-existing stable task id to use instead.
func NewVertexUID() string {
	return uuid.Must(uuid.NewV4()).String()
}

// Edge is one arc of the DAG projection.
type Edge struct {
	Label   string `json:"label"`
	FromUID string `json:"from_uid"`
	ToUID   string `json:"to_uid"`
}

// TaskConfig is the body sent to registerTask.
type TaskConfig struct {
	Label   string            `json:"label"`
	UID     string            `json:"uid"`
	Inputs  []string          `json:"inputs"`
	Outputs []string          `json:"outputs"`
	RAM     int               `json:"ram"`
	Cores   float64           `json:"cores"`
	Disk    int               `json:"disk"`
	Time    float64           `json:"time_seconds"`
	Other   map[string]string `json:"other,omitempty"`
}

// TaskHandle is what registerTask hands back: an opaque id the caller uses
// to query task state later.
type TaskHandle struct {
	ID string `json:"id"`
}

// TaskState is the response of getTaskState.
type TaskState struct {
	State string `json:"state"`
}

// RunConfig is the body sent to registerScheduler.
type RunConfig struct {
	DNS      string `json:"dns"`
	Strategy string `json:"strategy"`
}

// BatchState tracks the remote scheduler's batching window, invariant
// 0 <= TasksInBatch <= BatchSize.
type BatchState struct {
	TasksInBatch int
	BatchSize    int
}

// addFileLocationBody is the body sent to addFileLocation.
type addFileLocationBody struct {
	Path              string `json:"path"`
	Size              int64  `json:"size"`
	Timestamp         int64  `json:"timestamp"`
	LocationWrapperID string `json:"location_wrapper_id"`
	Node              string `json:"node,omitempty"`
}
