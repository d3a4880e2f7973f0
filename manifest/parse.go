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

package manifest

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	fieldsLong  = 8
	fieldsShort = 2
	fieldsBrief = 5
)

// ParseRecord parses one manifest data line (not the header) into a
// FileRecord. Any column arity other than 8 (normal), 5 (short-form, no
// timestamp columns) or 2-with-second-column-"0" (missing symlink target) is
// a hard parse error.
func ParseRecord(line string) (FileRecord, error) {
	fields := strings.Split(line, ";")

	switch len(fields) {
	case fieldsLong:
		return parseLongRecord(fields)
	case fieldsBrief:
		return parseBriefRecord(fields)
	case fieldsShort:
		return parseShortMissingRecord(fields)
	default:
		return FileRecord{}, fmt.Errorf("manifest: record has %d fields, want %d, %d or %d: %q",
			len(fields), fieldsShort, fieldsBrief, fieldsLong, line)
	}
}

// parseBriefRecord parses the 5-column short-form row a Writer built with
// short=true emits: path;1;real;size;type, with all three timestamp columns
// omitted and therefore unknown.
func parseBriefRecord(fields []string) (FileRecord, error) {
	exists, err := parseExists(fields[1])
	if err != nil {
		return FileRecord{}, err
	}

	size, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return FileRecord{}, fmt.Errorf("manifest: bad size %q: %w", fields[3], err)
	}

	return FileRecord{
		VirtualPath:     unquote(fields[0]),
		Exists:          exists,
		RealPath:        fields[2],
		Size:            size,
		FileType:        FileType(fields[4]),
		CreationUnknown: true,
		AccessUnknown:   true,
		ModUnknown:      true,
	}, nil
}

func parseShortMissingRecord(fields []string) (FileRecord, error) {
	if fields[1] != "0" {
		return FileRecord{}, fmt.Errorf("manifest: 2-field record must have exists=0, got %q", fields[1])
	}

	return FileRecord{
		VirtualPath: unquote(fields[0]),
		Exists:      false,
	}, nil
}

func parseLongRecord(fields []string) (FileRecord, error) {
	exists, err := parseExists(fields[1])
	if err != nil {
		return FileRecord{}, err
	}

	size, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return FileRecord{}, fmt.Errorf("manifest: bad size %q: %w", fields[3], err)
	}

	rec := FileRecord{
		VirtualPath: unquote(fields[0]),
		Exists:      exists,
		RealPath:    fields[2],
		Size:        size,
		FileType:    FileType(fields[4]),
	}

	rec.CreationTime, rec.CreationUnknown, err = ParseFileTime(fields[5])
	if err != nil {
		return FileRecord{}, err
	}

	rec.AccessTime, rec.AccessUnknown, err = ParseFileTime(fields[6])
	if err != nil {
		return FileRecord{}, err
	}

	rec.ModificationTime, rec.ModUnknown, err = ParseFileTime(fields[7])
	if err != nil {
		return FileRecord{}, err
	}

	return rec, nil
}

func parseExists(s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("manifest: bad exists flag %q", s)
	}
}

// unquote strips a single pair of surrounding single quotes, if present.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}

	return s
}
