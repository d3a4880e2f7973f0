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
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// TaskReportRow is one task's outcome as known at the end of a batch-driving
// run, for PrintReport's operator-facing summary table.
type TaskReportRow struct {
	Label string
	UID   string
	State string
}

const (
	stateCompleted = "complete"
	stateFailed    = "failed"
)

// PrintReport renders rows as a table to out, colouring the State column:
// green for complete, red for failed, yellow for anything still pending.
// Grounded on the operator-facing report tables seen across the pack (e.g.
// the metrics-check summary table), adapted to this run's task states.
func PrintReport(out io.Writer, rows []TaskReportRow) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Label", "UID", "State"})

	var completed, failed int

	for _, row := range rows {
		switch row.State {
		case stateCompleted:
			completed++
		case stateFailed:
			failed++
		}

		table.Append([]string{row.Label, row.UID, colourState(row.State)})
	}

	table.Render()

	bold := color.New(color.Bold).SprintFunc()
	_, _ = io.WriteString(out, bold(fmt.Sprintf("%d/%d tasks completed, %d failed\n", completed, len(rows), failed)))
}

func colourState(state string) string {
	switch state {
	case stateCompleted:
		return color.GreenString(state)
	case stateFailed:
		return color.RedString(state)
	default:
		return color.YellowString(state)
	}
}
