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

package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/inconshreveable/log15"

	"github.com/wtsi-hgi/locality/manifest"
)

// ErrBadArgs is returned for any command-line usage error.
var ErrBadArgs = errors.New("filescan")

// Scanner walks one or more directories and writes a manifest describing
// every entry found, rewriting the virtual path of anything found by
// descending into a qualifying symlinked directory so it appears to live
// under the symlink rather than its real target.
type Scanner struct {
	root       string
	w          *manifest.Writer
	log        log15.Logger
	totalBytes uint64
	totalRows  int
}

// NewScanner creates a Scanner writing to out. localRoot bounds which
// symlink targets are eligible to be descended into.
func NewScanner(localRoot string, out io.Writer, short bool, log log15.Logger) (*Scanner, error) {
	absRoot, err := filepath.Abs(localRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: local root %s: %s", ErrBadArgs, localRoot, err)
	}

	if info, err := os.Stat(absRoot); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: local root %s is not a readable directory", ErrBadArgs, localRoot)
	}

	return &Scanner{root: absRoot, w: manifest.NewWriter(out, short), log: log}, nil
}

// ScanAll scans every directory in dirs, writing one manifest with all of
// them under a shared header naming the first one as the nominal scan root.
func (s *Scanner) ScanAll(dirs []string) error {
	if len(dirs) == 0 {
		return fmt.Errorf("%w: no directories given to scan", ErrBadArgs)
	}

	if err := s.w.WriteHeader(dirs[0], time.Now().Unix()); err != nil {
		return fmt.Errorf("filescan: writing header: %w", err)
	}

	for _, dir := range dirs {
		if err := s.scanOne(dir); err != nil {
			return err
		}
	}

	s.log.Info("scan complete", "rows", s.totalRows, "bytes", bytefmt.ByteSize(s.totalBytes))

	return nil
}

func (s *Scanner) scanOne(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("%w: scan directory %s: %s", ErrBadArgs, dir, err)
	}

	info, err := os.Stat(absDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: unknown scan directory %s", ErrBadArgs, dir)
	}

	if !isUnderRoot(absDir, s.root) {
		return fmt.Errorf("%w: scan directory %s is outside local root %s", ErrBadArgs, dir, s.root)
	}

	return s.walk(absDir, absDir, absDir)
}

// walk descends realDir, emitting a row for every entry under virtualDir's
// name. topDir is the original top-level scan directory this walk started
// from: a symlink's resolved target only triggers a descend if it isn't
// already inside topDir, per spec. The recursion depth bounds the number of
// active symlink frames, each one represented by a (realDir, virtualDir)
// pair passed down the call.
func (s *Scanner) walk(realDir, virtualDir, topDir string) error {
	entries, err := os.ReadDir(realDir)
	if err != nil {
		return fmt.Errorf("filescan: reading %s: %w", realDir, err)
	}

	for _, entry := range entries {
		realPath := filepath.Join(realDir, entry.Name())
		virtualPath := filepath.Join(virtualDir, entry.Name())

		if err := s.visit(realPath, virtualPath, topDir, entry); err != nil {
			return err
		}
	}

	return nil
}

func (s *Scanner) visit(realPath, virtualPath, topDir string, entry fs.DirEntry) error {
	lstatInfo, err := os.Lstat(realPath)
	if err != nil {
		return fmt.Errorf("filescan: unreadable entry %s: %w", realPath, err)
	}

	if lstatInfo.Mode()&os.ModeSymlink == 0 {
		return s.emitAndRecurse(realPath, virtualPath, topDir, lstatInfo)
	}

	return s.visitSymlink(realPath, virtualPath, topDir)
}

func (s *Scanner) visitSymlink(realPath, virtualPath, topDir string) error {
	target, err := filepath.EvalSymlinks(realPath)
	if err != nil {
		return s.writeRecord(manifest.FileRecord{VirtualPath: virtualPath, Exists: false})
	}

	targetInfo, err := os.Stat(target)
	if err != nil {
		return s.writeRecord(manifest.FileRecord{VirtualPath: virtualPath, Exists: false})
	}

	if err := s.writeRecord(recordFromInfo(virtualPath, targetInfo, target)); err != nil {
		return err
	}

	if targetInfo.IsDir() && isUnderRoot(target, s.root) && !isUnderRoot(target, topDir) {
		return s.walk(target, virtualPath, topDir)
	}

	return nil
}

func (s *Scanner) emitAndRecurse(realPath, virtualPath, topDir string, info fs.FileInfo) error {
	if err := s.writeRecord(recordFromInfo(virtualPath, info, "")); err != nil {
		return err
	}

	if info.IsDir() {
		return s.walk(realPath, virtualPath, topDir)
	}

	return nil
}

func (s *Scanner) writeRecord(rec manifest.FileRecord) error {
	s.totalRows++
	s.totalBytes += uint64(rec.Size) //nolint:gosec // sizes are never negative

	if err := s.w.WriteRecord(rec); err != nil {
		return fmt.Errorf("filescan: writing record for %s: %w", rec.VirtualPath, err)
	}

	return nil
}

func recordFromInfo(virtualPath string, info fs.FileInfo, realTarget string) manifest.FileRecord {
	rec := manifest.FileRecord{
		VirtualPath:      virtualPath,
		Exists:           true,
		RealPath:         realTarget,
		Size:             info.Size(),
		ModificationTime: info.ModTime(),
	}

	switch {
	case info.IsDir():
		rec.FileType = manifest.FileTypeDirectory
	case realTarget != "":
		rec.FileType = manifest.FileTypeSymlink
	default:
		rec.FileType = manifest.FileTypeRegular
	}

	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		rec.CreationTime = time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec) //nolint:unconvert
		rec.AccessTime = time.Unix(stat.Atim.Sec, stat.Atim.Nsec)   //nolint:unconvert
	} else {
		rec.CreationUnknown = true
		rec.AccessUnknown = true
	}

	return rec
}

// isUnderRoot reports whether path is root itself or lexically nested under
// it. Both arguments must already be absolute and clean.
func isUnderRoot(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)

	if path == root {
		return true
	}

	return strings.HasPrefix(path, root+string(filepath.Separator))
}
