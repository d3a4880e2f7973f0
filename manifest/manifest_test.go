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

package manifest_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wtsi-hgi/locality/manifest"
)

func writeTempManifest(t *testing.T, contents []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "manifest.txt")
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestWriterReaderRoundTripLongForm(t *testing.T) {
	Convey("Given a long-form manifest written by Writer", t, func() {
		var buf bytes.Buffer
		w := manifest.NewWriter(&buf, false)

		So(w.WriteHeader("/scan/root", 0), ShouldBeNil)
		So(w.WriteRecord(manifest.FileRecord{
			VirtualPath: "/scan/root/f.txt",
			Exists:      true,
			Size:        42,
			FileType:    manifest.FileTypeRegular,
		}), ShouldBeNil)
		So(w.WriteRecord(manifest.FileRecord{
			VirtualPath: "/scan/root/dangling",
			Exists:      false,
		}), ShouldBeNil)

		path := writeTempManifest(t, buf.Bytes())

		Convey("Reader recovers the same rows", func() {
			r, err := manifest.OpenManifest(path)
			So(err, ShouldBeNil)
			defer r.Close()

			So(r.RootDir, ShouldEqual, "/scan/root")
			So(r.ScannedAt, ShouldBeEmpty)

			rec1, err := r.Next()
			So(err, ShouldBeNil)
			So(rec1.VirtualPath, ShouldEqual, "/scan/root/f.txt")
			So(rec1.Size, ShouldEqual, 42)

			rec2, err := r.Next()
			So(err, ShouldBeNil)
			So(rec2.Exists, ShouldBeFalse)

			_, err = r.Next()
			So(err, ShouldEqual, io.EOF)
		})
	})
}

func TestWriterReaderRoundTripShortForm(t *testing.T) {
	Convey("Given a short-form manifest", t, func() {
		var buf bytes.Buffer
		w := manifest.NewWriter(&buf, true)

		So(w.WriteHeader("/scan/root", 1_700_000_000), ShouldBeNil)
		So(w.WriteRecord(manifest.FileRecord{
			VirtualPath: "/scan/root/f.txt",
			Exists:      true,
			Size:        7,
			FileType:    manifest.FileTypeRegular,
		}), ShouldBeNil)

		path := writeTempManifest(t, buf.Bytes())

		Convey("The header carries a wall-clock timestamp, and records have no timestamp columns", func() {
			r, err := manifest.OpenManifest(path)
			So(err, ShouldBeNil)
			defer r.Close()

			So(r.ScannedAt, ShouldEqual, "1700000000")
			So(r.RootDir, ShouldEqual, "/scan/root")

			rec, err := r.Next()
			So(err, ShouldBeNil)
			So(rec.Size, ShouldEqual, 7)
		})
	})
}

func TestOpenManifestRejectsEmptyFile(t *testing.T) {
	Convey("Given an empty manifest file", t, func() {
		path := writeTempManifest(t, nil)

		Convey("OpenManifest fails", func() {
			_, err := manifest.OpenManifest(path)
			So(err, ShouldNotBeNil)
		})
	})
}
