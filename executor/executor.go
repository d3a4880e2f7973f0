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

// Package executor is the external collaborator spec §4.F describes: it
// installs the LocalPath factory, owns the single SchedulerClient for a run,
// drives the scheduler pod's bring-up against the real Kubernetes API, and
// exposes the DAG/batch boundary calls the workflow process's task-submission
// loop drives.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/inconshreveable/log15"
	"k8s.io/client-go/kubernetes"

	"github.com/wtsi-hgi/locality/internal"
	"github.com/wtsi-hgi/locality/localpath"
	"github.com/wtsi-hgi/locality/manifest"
	"github.com/wtsi-hgi/locality/schedulerclient"
)

// Executor owns the single SchedulerClient for one workflow run and the
// Kubernetes plumbing needed to bring its scheduler pod up.
type Executor struct {
	client      *schedulerclient.Client
	pods        *podManager
	namespace   string
	runID       string
	podName     string
	currentNode string
	log         log15.Logger
}

// Config bundles what New needs to assemble an Executor.
type Config struct {
	Namespace        string
	RunID            string
	Strategy         string
	PodName          string
	CurrentNode      string
	SchedulerBaseURL string
	HTTPTimeout      time.Duration
	ManagerDir       string
	PodSpec          PodSpecConfig
}

// New creates an Executor, its SchedulerClient, and the podManager that will
// back the bring-up protocol's PodManager collaborator. kubeClient is the
// caller's already-authenticated Kubernetes clientset (grounded on
// jobqueue/scheduler/kubernetes.go's Authenticate/Initialize split: this
// subsystem never authenticates on its own, it's handed a live client).
func New(cfg Config, kubeClient kubernetes.Interface, logger log15.Logger) (*Executor, error) {
	if logger == nil {
		logger = log15.New()
	}

	log := logger.New("component", "executor")

	if cfg.ManagerDir != "" {
		if err := internal.AttachFileHandler(log, cfg.ManagerDir, "executor"); err != nil {
			log.Warn("could not attach log file handler", "err", err)
		}
	}

	client := schedulerclient.New(cfg.SchedulerBaseURL, cfg.Namespace, cfg.RunID, cfg.Strategy, cfg.HTTPTimeout, logger)
	if cfg.PodSpec.Port != 0 {
		client.Port = cfg.PodSpec.Port
	}

	pods := newPodManager(kubeClient, cfg.Namespace, log)
	pods.spec = cfg.PodSpec

	return &Executor{
		client:      client,
		pods:        pods,
		namespace:   cfg.Namespace,
		runID:       cfg.RunID,
		podName:     cfg.PodName,
		currentNode: cfg.CurrentNode,
		log:         log,
	}, nil
}

// EnsureSchedulerRunning runs the bring-up protocol (find-or-create the
// scheduler pod, register, push the current DAG snapshot). Safe to call from
// every goroutine that's about to submit a task; only the first call does
// any work.
func (e *Executor) EnsureSchedulerRunning(ctx context.Context, vertices []schedulerclient.Vertex,
	edges []schedulerclient.Edge,
) error {
	return e.client.EnsureRegistered(ctx, e.podName, e.pods, vertices, edges)
}

// InformDAGChange passes through to the SchedulerClient, per the
// set_scheduler_client/inform_dag_change contract in spec §4.F.
func (e *Executor) InformDAGChange(ctx context.Context, vertices []schedulerclient.Vertex,
	edges []schedulerclient.Edge,
) error {
	return e.client.InformDAGChange(ctx, vertices, edges)
}

// MakeLocalPath is the factory LocalFileWalker is parameterised with, per
// spec §4.F. It wraps localpath.Factory, binding it to this Executor's
// client and current node.
func (e *Executor) MakeLocalPath(virtualPath string, attrs *manifest.FileRecord, workdir string) manifest.Path {
	return localpath.Factory(e.client, e.currentNode, e.log)(virtualPath, attrs, workdir)
}

// Client returns the underlying SchedulerClient, for callers (such as the
// batch-driving poll loop) that need direct access to StartBatch/
// StartSubmit/EndBatch/RegisterTask/GetTaskState.
func (e *Executor) Client() *schedulerclient.Client {
	return e.client
}

// Shutdown closes the SchedulerClient, telling the remote scheduler the run
// is over, per spec §4.F's "shut down the scheduler client on workflow
// completion".
func (e *Executor) Shutdown(ctx context.Context) {
	e.client.Close(ctx)
}

// ErrNoSuchNode is the error for a daemon lookup that names a node the
// Executor has no DaemonSet pod for. No function in this package returns it.
var ErrNoSuchNode = fmt.Errorf("executor: no local-storage daemon found for node")
