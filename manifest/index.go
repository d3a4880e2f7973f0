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

	"github.com/dgryski/go-farm"
)

// pathKey hashes a virtual path the same way jobqueue/utils.go's byteKey
// keys arbitrary byte slices, so an Index never has to retain the path
// string itself as a map key.
func pathKey(virtualPath string) string {
	lo, hi := farm.Hash128([]byte(virtualPath))

	return fmt.Sprintf("%016x%016x", lo, hi)
}

// Index is an in-memory lookup of every record in a manifest, built once and
// reused by repeated Lookup calls against the same manifest, avoiding a
// re-scan of the file for every LocalPath that needs its attributes. Built
// for a LocalFileWalker that makes many Lookup calls against one manifest in
// the course of one task, rather than the single-shot Walk/Lookup pair which
// reads the file directly.
type Index struct {
	byKey map[string]FileRecord
}

// BuildIndex reads every record out of the manifest at path and returns an
// Index over them.
func BuildIndex(path string) (*Index, error) {
	r, err := OpenManifest(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	idx := &Index{byKey: make(map[string]FileRecord)}

	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		idx.byKey[pathKey(rec.VirtualPath)] = rec
	}

	return idx, nil
}

// Lookup returns the record for virtualPath, if the manifest contained one.
func (idx *Index) Lookup(virtualPath string) (FileRecord, bool) {
	rec, found := idx.byKey[pathKey(virtualPath)]

	return rec, found
}

// Len returns the number of records in the index.
func (idx *Index) Len() int {
	return len(idx.byKey)
}
