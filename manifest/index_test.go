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
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wtsi-hgi/locality/manifest"
)

func TestBuildIndexLookup(t *testing.T) {
	Convey("Given a manifest with several records", t, func() {
		path := filepath.Join(t.TempDir(), "manifest.txt")

		f, err := os.Create(path)
		So(err, ShouldBeNil)

		w := manifest.NewWriter(f, false)
		So(w.WriteHeader("/root", 0), ShouldBeNil)
		So(w.WriteRecord(manifest.FileRecord{
			VirtualPath: "/root/a.txt", Exists: true, Size: 1, FileType: manifest.FileTypeRegular,
		}), ShouldBeNil)
		So(w.WriteRecord(manifest.FileRecord{
			VirtualPath: "/root/b.txt", Exists: true, Size: 2, FileType: manifest.FileTypeRegular,
		}), ShouldBeNil)
		So(f.Close(), ShouldBeNil)

		Convey("BuildIndex lets every record be looked up by virtual path", func() {
			idx, err := manifest.BuildIndex(path)
			So(err, ShouldBeNil)
			So(idx.Len(), ShouldEqual, 2)

			rec, found := idx.Lookup("/root/a.txt")
			So(found, ShouldBeTrue)
			So(rec.Size, ShouldEqual, 1)

			_, found = idx.Lookup("/root/nope.txt")
			So(found, ShouldBeFalse)
		})
	})
}
