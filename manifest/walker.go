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
	"io"
	"strings"
	"sync"
)

// VisitResult is returned by a Visitor to tell Walk how to proceed.
type VisitResult int

const (
	// Continue tells Walk to keep visiting records as normal.
	Continue VisitResult = iota
	// SkipSubtree tells Walk to silently drop every subsequent record whose
	// virtual path is a strict descendant of the one just visited.
	SkipSubtree
)

// Path is the minimal surface LocalFileWalker needs from whatever
// location-aware wrapper a PathFactory produces (normally a
// *localpath.LocalPath). Decoupling on this interface keeps the manifest
// package free of any dependency on localpath or the scheduler client.
type Path interface {
	fmt.Stringer
}

// PathFactory builds the Path handed to visitors, given the virtual path, the
// FileRecord attributes describing it (nil only if not yet known), and the
// task's original work directory (for later path rewriting). Bound to a
// concrete scheduler client by whoever wires up the executor; LocalFileWalker
// only ever depends on this function type.
type PathFactory func(virtualPath string, attrs *FileRecord, workdir string) Path

// Visitor is called once per manifest record by Walk.
type Visitor interface {
	PreVisitDirectory(p Path, attrs FileRecord) VisitResult
	VisitFile(p Path, attrs FileRecord) VisitResult
}

// Walk streams manifestPath one FileRecord at a time, dispatching each row to
// visitor as a directory or file, honouring SkipSubtree semantics. The
// default walk is single-threaded: SkipSubtree is stateful, so records must
// be processed in the order the scanner emitted them (directories always
// precede their contents, per the manifest's invariants).
func Walk(manifestPath string, visitor Visitor, workdir string, factory PathFactory) error {
	r, err := OpenManifest(manifestPath)
	if err != nil {
		return err
	}
	defer r.Close()

	var skippedDir string
	haveSkip := false

	for {
		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if haveSkip && isStrictDescendant(rec.VirtualPath, skippedDir) {
			continue
		}

		p := factory(rec.VirtualPath, &rec, workdir)

		var result VisitResult
		if rec.Exists && rec.IsDir() {
			result = visitor.PreVisitDirectory(p, rec)
		} else {
			result = visitor.VisitFile(p, rec)
		}

		if result == SkipSubtree {
			skippedDir = rec.VirtualPath
			haveSkip = true
		}
	}
}

// isStrictDescendant reports whether child is strictly nested under dir,
// treating dir as a path prefix terminated by a '/'.
func isStrictDescendant(child, dir string) bool {
	prefix := strings.TrimSuffix(dir, "/") + "/"

	return strings.HasPrefix(child, prefix) && child != dir
}

// FakePath translates a path as seen by the current task (rooted at
// workdir) into the "fake path" the native scanner would have recorded when
// it scanned scanRoot, by textual prefix substitution. This mirrors the
// external path-translation collaborator described by the spec: purely
// textual, no filesystem access.
func FakePath(current, workdir, scanRoot string) string {
	if !strings.HasPrefix(current, workdir) {
		return current
	}

	return scanRoot + strings.TrimPrefix(current, workdir)
}

// Lookup scans manifestPath for the record whose virtual path equals
// wantedVirtualPath translated into the scanning-time fake path (see
// FakePath), returning a Path wrapping the first match.
// Returns (nil, nil) if the manifest has no such record, including when the
// manifest is empty (a configuration condition, not an error).
func Lookup(manifestPath, wantedVirtualPath, workdir string, factory PathFactory) (Path, error) {
	r, err := OpenManifest(manifestPath)
	if err != nil {
		return nil, nil //nolint:nilerr // empty/unreadable manifest means "not present", per spec §7.
	}
	defer r.Close()

	fake := FakePath(wantedVirtualPath, workdir, r.RootDir)

	var records []FileRecord
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	match, found := parallelFindFirst(records, fake)
	if !found {
		return nil, nil
	}

	return factory(match.VirtualPath, &match, workdir), nil
}

// parallelFindFirst scans records concurrently for the first one whose
// VirtualPath equals want. Order of discovery doesn't matter since only one
// match is ever expected; a plain sequential scan is used below a small
// threshold to avoid goroutine overhead for short manifests.
func parallelFindFirst(records []FileRecord, want string) (FileRecord, bool) {
	const parallelThreshold = 256

	if len(records) < parallelThreshold {
		for _, rec := range records {
			if rec.VirtualPath == want {
				return rec, true
			}
		}

		return FileRecord{}, false
	}

	const workers = 8
	chunk := (len(records) + workers - 1) / workers

	type result struct {
		rec   FileRecord
		found bool
	}

	results := make([]result, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * chunk
		end := start + chunk
		if start >= len(records) {
			break
		}
		if end > len(records) {
			end = len(records)
		}

		wg.Add(1)
		go func(idx, start, end int) {
			defer wg.Done()
			for _, rec := range records[start:end] {
				if rec.VirtualPath == want {
					results[idx] = result{rec: rec, found: true}

					return
				}
			}
		}(i, start, end)
	}
	wg.Wait()

	for _, res := range results {
		if res.found {
			return res.rec, true
		}
	}

	return FileRecord{}, false
}
