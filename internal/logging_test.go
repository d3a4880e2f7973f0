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

package internal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/inconshreveable/log15"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/wtsi-hgi/locality/internal"
)

func TestAttachFileHandlerWritesToManagerDir(t *testing.T) {
	Convey("Given a manager directory", t, func() {
		dir := t.TempDir()
		logger := log15.New()

		Convey("AttachFileHandler creates a log file named after the component", func() {
			So(internal.AttachFileHandler(logger, dir, "executor"), ShouldBeNil)

			logger.Info("hello")

			data, err := os.ReadFile(filepath.Join(dir, "executor.log"))
			So(err, ShouldBeNil)
			So(string(data), ShouldContainSubstring, "hello")
		})
	})
}

func TestAttachFileHandlerFailsOnBadDirectory(t *testing.T) {
	Convey("Given a manager directory that doesn't exist", t, func() {
		logger := log15.New()

		Convey("AttachFileHandler returns an error", func() {
			err := internal.AttachFileHandler(logger, "/no/such/dir/at/all", "executor")
			So(err, ShouldNotBeNil)
		})
	})
}
