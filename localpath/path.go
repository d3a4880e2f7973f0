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

// Package localpath provides LocalPath, a file-path wrapper whose read
// operations transparently resolve to either a local open or an FTP fetch
// from the node that currently owns the file, and whose mutating operations
// transparently download the file first.
package localpath

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/inconshreveable/log15"

	"github.com/wtsi-hgi/locality/manifest"
	"github.com/wtsi-hgi/locality/schedulerclient"
)

// LocationFetcher is the subset of *schedulerclient.Client a LocalPath needs.
// LocalPath holds this as a non-owning reference: it never outlives the run
// the client belongs to, and never closes it. Defined as an interface here
// so tests can substitute a fake scheduler.
type LocationFetcher interface {
	GetFileLocation(ctx context.Context, virtualPath string) (schedulerclient.FileLocation, error)
	GetDaemonOnNode(ctx context.Context, node string) (string, error)
	AddFileLocation(ctx context.Context, path string, size int64, mtime time.Time,
		wrapperID, node string, overwrite bool) error
}

// LocalPath wraps a path as observed by a task, resolving reads against
// whichever node the remote scheduler says currently owns the file, and
// promoting to a local download before any operation that could mutate it.
type LocalPath struct {
	underlyingPath string
	attrs          *manifest.FileRecord
	workdir        string
	currentNode    string
	client         LocationFetcher
	log            log15.Logger

	mu                   sync.Mutex // guards symlink materialisation and download
	downloaded           bool
	symlinksMaterialised bool
}

// Factory returns a manifest.PathFactory bound to client and currentNode,
// the node name this process is running on (used when reporting newly
// materialised file locations back to the scheduler). LocalFileWalker is
// parameterised with the returned closure so it never depends on
// schedulerclient directly, per the executor-glue contract in spec §4.F.
func Factory(client LocationFetcher, currentNode string, logger log15.Logger) manifest.PathFactory {
	return func(virtualPath string, attrs *manifest.FileRecord, workdir string) manifest.Path {
		return New(virtualPath, attrs, workdir, client, currentNode, logger)
	}
}

// New creates a LocalPath directly, for explicit promotion of a plain path
// that wasn't discovered via a manifest walk. logger may be nil.
func New(underlyingPath string, attrs *manifest.FileRecord, workdir string,
	client LocationFetcher, currentNode string, logger log15.Logger,
) *LocalPath {
	if logger == nil {
		logger = log15.New()
	}

	return &LocalPath{
		underlyingPath: underlyingPath,
		attrs:          attrs,
		workdir:        workdir,
		currentNode:    currentNode,
		client:         client,
		log:            logger.New("component", "localpath"),
	}
}

// String returns the underlying path, satisfying manifest.Path and
// fmt.Stringer.
func (p *LocalPath) String() string {
	return p.underlyingPath
}

// UnderlyingPath returns the wrapped path as-is.
func (p *LocalPath) UnderlyingPath() string {
	return p.underlyingPath
}

// Downloaded reports whether this LocalPath has already fetched its content
// to local disk, either via an explicit download or a prior mutating
// operation.
func (p *LocalPath) Downloaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.downloaded
}

// SymlinksMaterialised reports whether symlink materialisation has already
// run for this LocalPath.
func (p *LocalPath) SymlinksMaterialised() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.symlinksMaterialised
}

// Attributes returns the FileRecord this LocalPath was constructed with, and
// whether one was available.
func (p *LocalPath) Attributes() (manifest.FileRecord, bool) {
	if p.attrs == nil {
		return manifest.FileRecord{}, false
	}

	return *p.attrs, true
}

// Parent, Resolve, Normalize, Subpath and ToAbsolutePath return LocalPaths
// wrapping the transformed underlying path, inheriting this LocalPath's
// client and workdir, per spec §4.E ("Navigation operations").

// Parent returns the LocalPath for this path's containing directory.
func (p *LocalPath) Parent() *LocalPath {
	return p.derive(filepath.Dir(p.underlyingPath))
}

// Resolve returns the LocalPath produced by resolving other against this
// path, following true path-resolution semantics (design note: not
// normalize()), i.e. an absolute other replaces this path entirely.
func (p *LocalPath) Resolve(other string) *LocalPath {
	if filepath.IsAbs(other) {
		return p.derive(other)
	}

	return p.derive(filepath.Join(p.underlyingPath, other))
}

// Normalize returns the LocalPath for the lexically cleaned form of this
// path.
func (p *LocalPath) Normalize() *LocalPath {
	return p.derive(filepath.Clean(p.underlyingPath))
}

// Subpath returns the LocalPath for the slice [begin, end) of this path's
// components.
func (p *LocalPath) Subpath(begin, end int) *LocalPath {
	parts := splitPath(p.underlyingPath)
	if begin < 0 {
		begin = 0
	}

	if end > len(parts) {
		end = len(parts)
	}

	if begin >= end {
		return p.derive("")
	}

	return p.derive(filepath.Join(parts[begin:end]...))
}

// ToAbsolutePath returns the LocalPath for the absolute form of this path,
// rooted at workdir if it is currently relative.
func (p *LocalPath) ToAbsolutePath() *LocalPath {
	if filepath.IsAbs(p.underlyingPath) {
		return p.derive(p.underlyingPath)
	}

	return p.derive(filepath.Join(p.workdir, p.underlyingPath))
}

// GetRoot, GetFileName and GetName answer from the plain underlying path:
// they don't need location awareness, per spec §4.E.

// GetRoot returns the root component of the underlying path ("/" on Unix),
// or "" if the path is relative.
func (p *LocalPath) GetRoot() string {
	if filepath.IsAbs(p.underlyingPath) {
		return "/"
	}

	return ""
}

// GetFileName returns the final component of the underlying path.
func (p *LocalPath) GetFileName() string {
	return filepath.Base(p.underlyingPath)
}

// GetName returns the i'th component of the underlying path.
func (p *LocalPath) GetName(i int) (string, bool) {
	parts := splitPath(p.underlyingPath)
	if i < 0 || i >= len(parts) {
		return "", false
	}

	return parts[i], true
}

// ToRealPath returns the symlink destination recorded in this LocalPath's
// FileRecord when available, else delegates to the filesystem.
func (p *LocalPath) ToRealPath() (string, error) {
	if p.attrs != nil && p.attrs.RealPath != "" {
		return p.attrs.RealPath, nil
	}

	return filepath.EvalSymlinks(p.underlyingPath)
}

// CompareTo compares two LocalPaths by their underlying paths. Comparing
// against a plain string delegates to that string.
func (p *LocalPath) CompareTo(other interface{}) int {
	var otherPath string

	switch o := other.(type) {
	case *LocalPath:
		otherPath = o.underlyingPath
	case string:
		otherPath = o
	default:
		return -1
	}

	switch {
	case p.underlyingPath < otherPath:
		return -1
	case p.underlyingPath > otherPath:
		return 1
	default:
		return 0
	}
}

func (p *LocalPath) derive(underlying string) *LocalPath {
	return &LocalPath{
		underlyingPath: underlying,
		attrs:          nil,
		workdir:        p.workdir,
		currentNode:    p.currentNode,
		client:         p.client,
		log:            p.log,
	}
}

func splitPath(path string) []string {
	clean := filepath.ToSlash(filepath.Clean(path))
	if clean == "." || clean == "/" {
		return nil
	}

	clean = strings.TrimPrefix(clean, "/")

	return strings.Split(clean, "/")
}
