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
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/wtsi-hgi/locality/manifest"
)

func TestParseRecordLongForm(t *testing.T) {
	Convey("Given an 8-field record line", t, func() {
		line := "/work/a.txt;1;;123;regular file;" +
			"2021-08-17 09:30:00.123456789 +0100;" +
			"2021-08-17 09:31:00.000000000 +0100;" +
			"2021-08-17 09:32:00.000000000 +0100"

		Convey("ParseRecord decodes every column", func() {
			rec, err := manifest.ParseRecord(line)
			So(err, ShouldBeNil)
			So(rec.VirtualPath, ShouldEqual, "/work/a.txt")
			So(rec.Exists, ShouldBeTrue)
			So(rec.Size, ShouldEqual, 123)
			So(rec.FileType, ShouldEqual, manifest.FileTypeRegular)
			So(rec.CreationUnknown, ShouldBeFalse)
			So(rec.CreationTime.Hour(), ShouldEqual, 9)
			So(rec.CreationTime.Minute(), ShouldEqual, 30)
		})
	})
}

func TestParseRecordMissingSymlinkTarget(t *testing.T) {
	Convey("Given a 2-field missing-target record", t, func() {
		Convey("ParseRecord reports Exists=false and nothing else", func() {
			rec, err := manifest.ParseRecord("/work/dangling;0")
			So(err, ShouldBeNil)
			So(rec.Exists, ShouldBeFalse)
			So(rec.VirtualPath, ShouldEqual, "/work/dangling")
			So(rec.IsSymlink(), ShouldBeTrue)
		})

		Convey("A second column other than 0 is a parse error", func() {
			_, err := manifest.ParseRecord("/work/dangling;1")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestParseRecordBriefForm(t *testing.T) {
	Convey("Given a 5-field short-form record line", t, func() {
		line := "/work/a.txt;1;;123;regular file"

		Convey("ParseRecord decodes path/exists/real/size/type and leaves timestamps unknown", func() {
			rec, err := manifest.ParseRecord(line)
			So(err, ShouldBeNil)
			So(rec.VirtualPath, ShouldEqual, "/work/a.txt")
			So(rec.Exists, ShouldBeTrue)
			So(rec.Size, ShouldEqual, 123)
			So(rec.FileType, ShouldEqual, manifest.FileTypeRegular)
			So(rec.CreationUnknown, ShouldBeTrue)
			So(rec.AccessUnknown, ShouldBeTrue)
			So(rec.ModUnknown, ShouldBeTrue)
		})
	})
}

func TestParseRecordWrongArityIsAnError(t *testing.T) {
	Convey("Given a line with the wrong number of fields", t, func() {
		Convey("ParseRecord rejects it", func() {
			_, err := manifest.ParseRecord("/work/a.txt;1;;123")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestParseRecordUnquotesSingleQuotedPaths(t *testing.T) {
	Convey("Given a quoted virtual path", t, func() {
		line := "'/work/has space.txt';1;;1;regular file;-;-;-"

		Convey("ParseRecord strips the surrounding quotes", func() {
			rec, err := manifest.ParseRecord(line)
			So(err, ShouldBeNil)
			So(rec.VirtualPath, ShouldEqual, "/work/has space.txt")
			So(rec.CreationUnknown, ShouldBeTrue)
		})
	})
}

func TestEffectiveCreationTimeFallsBackToModTime(t *testing.T) {
	Convey("Given a record with an unknown creation time", t, func() {
		rec, err := manifest.ParseRecord("/x;1;;1;regular file;-;-;2021-08-17 09:30:00.000000000 +0100")
		So(err, ShouldBeNil)

		Convey("EffectiveCreationTime returns ModificationTime", func() {
			So(rec.EffectiveCreationTime(), ShouldEqual, rec.ModificationTime)
		})
	})
}
