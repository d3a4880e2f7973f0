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

// Package internal holds small config and path helpers shared by every
// component of the locality subsystem, the way wr's own internal package
// does for the rest of the manager.
package internal

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
)

// TildaToHome converts a path that may begin with "~/" to one rooted at the
// current user's home directory, leaving other paths untouched.
func TildaToHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home := os.Getenv("HOME")
	if home == "" {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}

// Config holds the tunables for the locality subsystem: scheduler HTTP
// timeouts, FTP retry behaviour and batch sizing. Zero-valued fields are
// filled in with sane defaults by Load.
type Config struct {
	// Namespace is the Kubernetes namespace the run executes in.
	Namespace string

	// RunID identifies this workflow run to the remote scheduler.
	RunID string

	// SchedulerHTTPTimeout bounds every blocking HTTP call to the remote
	// scheduler.
	SchedulerHTTPTimeout time.Duration `default:"30s"`

	// BringUpMaxAttempts is how many times registerScheduler is retried on
	// connection refusal during bring-up.
	BringUpMaxAttempts int `default:"50"`

	// BringUpBackoff is the fixed delay between bring-up retries.
	BringUpBackoff time.Duration `default:"3s"`

	// FTPMaxAttempts is how many times an FTP fetch is retried before giving
	// up, re-querying the daemon address between each attempt.
	FTPMaxAttempts int `default:"6"`

	// BatchSize is the number of task submissions grouped between
	// startBatch/endBatch calls to the remote scheduler.
	BatchSize int `default:"500"`

	// ManagerDir is where per-component log files are written.
	ManagerDir string `default:"/tmp/locality"`
}

// Load returns a Config with defaults applied, overridden by any non-zero
// fields in override.
func Load(override Config) (*Config, error) {
	cfg := override
	if err := defaults.Set(&cfg); err != nil {
		return nil, err
	}

	cfg.ManagerDir = TildaToHome(cfg.ManagerDir)

	return &cfg, nil
}
