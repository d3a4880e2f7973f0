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
	"bytes"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestPrintReportSummarisesOutcomes(t *testing.T) {
	Convey("Given a mix of completed and failed tasks", t, func() {
		rows := []TaskReportRow{
			{Label: "a", UID: "u1", State: stateCompleted},
			{Label: "b", UID: "u2", State: stateFailed},
			{Label: "c", UID: "u3", State: stateCompleted},
		}

		var buf bytes.Buffer

		Convey("PrintReport writes a table and a summary line", func() {
			PrintReport(&buf, rows)

			out := buf.String()
			So(out, ShouldContainSubstring, "a")
			So(out, ShouldContainSubstring, "b")
			So(out, ShouldContainSubstring, "2/3 tasks completed, 1 failed")
		})
	})
}
