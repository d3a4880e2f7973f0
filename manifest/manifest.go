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
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// Reader streams a manifest file one FileRecord at a time. The first line,
// the scan-root header (or, for a short-form manifest, a wall-clock
// timestamp followed by the scan-root on the next line), is available via
// RootDir once the Reader has been opened.
type Reader struct {
	RootDir   string
	ScannedAt string // non-empty only for short-form manifests

	f       *os.File
	scanner *bufio.Scanner
}

// OpenManifest opens path and reads its header line(s), leaving the Reader
// positioned at the first data row.
func OpenManifest(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}

	r := &Reader{f: f, scanner: bufio.NewScanner(f)}
	r.scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !r.scanner.Scan() {
		f.Close()

		return nil, fmt.Errorf("manifest: %s is empty", path)
	}

	first := r.scanner.Text()
	if _, err := strconv.ParseInt(first, 10, 64); err == nil {
		// short-form: first line is a wall-clock header, root dir follows.
		r.ScannedAt = first
		if !r.scanner.Scan() {
			f.Close()

			return nil, fmt.Errorf("manifest: %s missing root dir header", path)
		}

		r.RootDir = r.scanner.Text()
	} else {
		r.RootDir = first
	}

	return r, nil
}

// Next reads and parses the next record, returning io.EOF once the manifest
// is exhausted.
func (r *Reader) Next() (FileRecord, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return FileRecord{}, fmt.Errorf("manifest: %w", err)
		}

		return FileRecord{}, io.EOF
	}

	return ParseRecord(r.scanner.Text())
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}

// Writer emits manifest rows in the wire format consumed by Reader, used by
// the native file-scanner (cmd/filescan).
type Writer struct {
	w     io.Writer
	short bool
}

// NewWriter creates a Writer. When short is true, the header line written by
// WriteHeader is prefixed with a wall-clock timestamp and records written by
// WriteRecord omit their three timestamp columns.
func NewWriter(w io.Writer, short bool) *Writer {
	return &Writer{w: w, short: short}
}

// WriteHeader writes the manifest's first line(s): the scan-root directory,
// optionally preceded by a wall-clock timestamp in short mode.
func (w *Writer) WriteHeader(rootDir string, scannedAtUnix int64) error {
	if w.short {
		if _, err := fmt.Fprintf(w.w, "%d\n", scannedAtUnix); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w.w, "%s\n", rootDir)

	return err
}

// WriteRecord writes one FileRecord, using the 2-column form for a missing
// symlink target and the appropriate 8- or 5-column form otherwise.
func (w *Writer) WriteRecord(rec FileRecord) error {
	if !rec.Exists {
		_, err := fmt.Fprintf(w.w, "%s;0\n", rec.VirtualPath)

		return err
	}

	if w.short {
		_, err := fmt.Fprintf(w.w, "%s;1;%s;%d;%s\n",
			rec.VirtualPath, rec.RealPath, rec.Size, rec.FileType)

		return err
	}

	_, err := fmt.Fprintf(w.w, "%s;1;%s;%d;%s;%s;%s;%s\n",
		rec.VirtualPath, rec.RealPath, rec.Size, rec.FileType,
		timeOrUnknown(rec.CreationTime, rec.CreationUnknown),
		timeOrUnknown(rec.AccessTime, rec.AccessUnknown),
		timeOrUnknown(rec.ModificationTime, rec.ModUnknown))

	return err
}

func timeOrUnknown(t time.Time, unknown bool) string {
	if unknown {
		return "-"
	}

	return FormatFileTime(t)
}
