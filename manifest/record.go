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

// Package manifest parses and emits the semicolon-delimited task manifest
// format produced by the native file-scanner (.command.infiles and
// .command.outfiles), and streams the records it describes to visitors.
package manifest

import "time"

// FileType is the kind of filesystem entry a FileRecord describes.
type FileType string

// The three file types the native scanner ever emits.
const (
	FileTypeRegular   FileType = "regular file"
	FileTypeDirectory FileType = "directory"
	FileTypeSymlink   FileType = "symbolic link"
)

// FileRecord is one row of a manifest: the scanner's report on a single path.
//
// Exists=false rows are missing symlink targets: only VirtualPath and Exists
// are meaningful, every other field is its zero value.
type FileRecord struct {
	VirtualPath      string
	Exists           bool
	RealPath         string // symlink target; empty for a regular file
	Size             int64
	FileType         FileType
	CreationTime     time.Time
	CreationUnknown  bool
	AccessTime       time.Time
	AccessUnknown    bool
	ModificationTime time.Time
	ModUnknown       bool
}

// IsDir reports whether this record describes a directory.
func (r FileRecord) IsDir() bool {
	return r.FileType == FileTypeDirectory
}

// IsSymlink reports whether this record describes a symbolic link, whether
// or not its target exists.
func (r FileRecord) IsSymlink() bool {
	return !r.Exists || r.RealPath != ""
}

// EffectiveCreationTime returns CreationTime, substituting
// ModificationTime when the creation time was unknown, per the manifest
// format's invariant.
func (r FileRecord) EffectiveCreationTime() time.Time {
	if r.CreationUnknown {
		return r.ModificationTime
	}

	return r.CreationTime
}
