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

package localpath

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/carbocation/runningvariance"
	"github.com/hashicorp/go-multierror"
	"github.com/inconshreveable/log15"
	"github.com/jlaffaye/ftp"

	"github.com/wtsi-hgi/locality/ftppool"
	"github.com/wtsi-hgi/locality/internal"
	"github.com/wtsi-hgi/locality/schedulerclient"
)

// Anonymous-style FTP credentials the node daemons accept, per spec §4.E.
const (
	ftpUser = "ftp"
	ftpPass = "nextflowClient"

	ftpDialTimeout = 10 * time.Second
	ftpMaxAttempts = 6

	poolMaxSlots       = 4
	poolDelayBetween   = 50 * time.Millisecond
	poolReleaseTimeout = 30 * time.Second

	defaultFileMode = 0o644
	defaultDirMode  = 0o755
)

// ftpPools holds one ftppool.Pool per daemon address, shared by every
// LocalPath in the process so concurrent fetches from the same daemon are
// bounded regardless of which LocalPath instance initiates them.
var ftpPools sync.Map //nolint:gochecknoglobals // per-process daemon registry, not per-test state

func poolFor(daemon string) *ftppool.Pool {
	if v, ok := ftpPools.Load(daemon); ok {
		return v.(*ftppool.Pool) //nolint:forcetypeassert
	}

	p := ftppool.NewPool(daemon, poolDelayBetween, poolMaxSlots, poolReleaseTimeout)

	actual, _ := ftpPools.LoadOrStore(daemon, p)

	return actual.(*ftppool.Pool) //nolint:forcetypeassert
}

// throughputStats tracks a running mean/variance of FTP fetch throughput
// (bytes/second) per daemon, so a daemon whose transfers are degrading can be
// flagged in the logs well before its retry budget is exhausted.
var throughputStats sync.Map //nolint:gochecknoglobals // per-process daemon registry

const degradingStdDevFactor = 2

func recordThroughput(log log15.Logger, daemon string, bytesPerSecond float64) {
	v, _ := throughputStats.LoadOrStore(daemon, new(runningvariance.RunningStat))
	stat := v.(*runningvariance.RunningStat) //nolint:forcetypeassert

	stat.Push(bytesPerSecond)

	if stat.NumDataValues() < minThroughputSamples {
		return
	}

	mean := stat.Mean()
	if bytesPerSecond < mean-degradingStdDevFactor*stat.StandardDeviation() {
		log.Warn("ftp throughput degrading", "daemon", daemon,
			"rate", bytefmt.ByteSize(uint64(bytesPerSecond))+"/s",
			"mean", bytefmt.ByteSize(uint64(mean))+"/s")
	}
}

const minThroughputSamples = 5

// Reader opens the file for reading. If the file already lives on this
// engine (or has already been downloaded by an earlier mutating operation)
// it opens it directly; otherwise it streams the content straight from the
// owning node's FTP daemon without persisting anything to disk or marking
// the file downloaded. Per spec §4.E/§8, a read alone never triggers a
// download: that promotion only happens via a mutating operation.
func (p *LocalPath) Reader(ctx context.Context) (io.ReadCloser, error) {
	loc, err := p.client.GetFileLocation(ctx, p.underlyingPath)
	if err != nil {
		return nil, fmt.Errorf("localpath: %s: %w", p.underlyingPath, err)
	}

	p.materialiseSymlinks(loc)

	if loc.SameAsEngine || p.Downloaded() {
		return os.Open(p.underlyingPath)
	}

	return p.streamViaFTP(ctx, loc)
}

// streamViaFTP opens an ad hoc FTP stream and pipes it directly to the
// caller, retrying against a freshly re-queried daemon address on failure.
// Unlike downloadViaFTP, it never writes to p.underlyingPath and never sets
// p.downloaded: that bookkeeping is reserved for the download-on-write
// promotion path in mutate/OpenWritable.
func (p *LocalPath) streamViaFTP(ctx context.Context, loc schedulerclient.FileLocation) (io.ReadCloser, error) {
	policy := internal.ExponentialFTPPolicy(ftpMaxAttempts)
	daemon := loc.Daemon

	var stream io.ReadCloser

	err := internal.Retry(policy, func(error) bool { return true }, func(attempt int) error {
		if attempt > 0 {
			d, err := p.client.GetDaemonOnNode(ctx, loc.Node)
			if err != nil {
				return err
			}

			daemon = d
		}

		rc, err := p.openAdHocStream(daemon, loc.Path)
		if err != nil {
			return err
		}

		stream = rc

		return nil
	})
	if err != nil {
		return nil, err
	}

	return stream, nil
}

// openAdHocStream acquires a slot from daemon's connection pool, dials and
// issues a RETR, and returns a ReadCloser that releases the slot back to the
// pool when the caller closes the stream, alongside the FTP connection
// itself.
func (p *LocalPath) openAdHocStream(daemon, remotePath string) (io.ReadCloser, error) {
	pool := poolFor(daemon)

	receipt, err := pool.Request(1)
	if err != nil {
		return nil, err
	}

	if !pool.WaitUntilGranted(receipt) {
		return nil, fmt.Errorf("localpath: timed out waiting for an FTP slot on %s", daemon)
	}

	rc, err := dialAndRetrieve(daemon, remotePath)
	if err != nil {
		pool.Release(receipt)

		return nil, err
	}

	return &pooledStream{ReadCloser: rc, pool: pool, receipt: receipt}, nil
}

// pooledStream wraps an ad hoc FTP stream so closing it also releases the
// connection-pool slot it was granted, without ever touching local disk.
type pooledStream struct {
	io.ReadCloser
	pool    *ftppool.Pool
	receipt ftppool.Receipt
}

func (s *pooledStream) Close() error {
	err := s.ReadCloser.Close()
	s.pool.Release(s.receipt)

	return err
}

// WithReader opens the file and passes it to fn, closing it afterwards
// regardless of fn's outcome.
func (p *LocalPath) WithReader(ctx context.Context, fn func(io.Reader) error) error {
	f, err := p.Reader(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	return fn(f)
}

// Bytes returns the file's entire content. It reads the file directly rather
// than going through Text, so it returns raw bytes even for content that
// isn't valid text.
func (p *LocalPath) Bytes(ctx context.Context) ([]byte, error) {
	f, err := p.Reader(ctx)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

// Text returns the file's entire content decoded as a string.
func (p *LocalPath) Text(ctx context.Context) (string, error) {
	b, err := p.Bytes(ctx)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// Lines returns the file's content split into lines, without trailing
// newlines.
func (p *LocalPath) Lines(ctx context.Context) ([]string, error) {
	f, err := p.Reader(ctx)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	return lines, scanner.Err()
}

// IsDirectory reports whether this path is a directory, preferring the
// attached manifest record over a filesystem stat.
func (p *LocalPath) IsDirectory() bool {
	if p.attrs != nil {
		return p.attrs.IsDir()
	}

	info, err := os.Stat(p.underlyingPath)

	return err == nil && info.IsDir()
}

// Size returns the file's size, preferring the attached manifest record over
// a filesystem stat.
func (p *LocalPath) Size() (int64, error) {
	if p.attrs != nil {
		return p.attrs.Size, nil
	}

	info, err := os.Stat(p.underlyingPath)
	if err != nil {
		return 0, err
	}

	return info.Size(), nil
}

// mutatingOperations is the explicit, closed set of LocalPath operations
// that can change a file's content or modification time. Each downloads the
// file first if necessary and reports the resulting location back to the
// scheduler afterwards. The set is enumerated here by name rather than
// intercepted generically, per the design note in spec §9 rejecting a
// reflection/metaclass-hook approach.

// Write replaces the file's entire content.
func (p *LocalPath) Write(ctx context.Context, data []byte) error {
	return p.mutate(ctx, func() error {
		return os.WriteFile(p.underlyingPath, data, defaultFileMode)
	})
}

// Append adds data to the end of the file, creating it if necessary.
func (p *LocalPath) Append(ctx context.Context, data []byte) error {
	return p.mutate(ctx, func() error {
		f, err := os.OpenFile(p.underlyingPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, defaultFileMode)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = f.Write(data)

		return err
	})
}

// SetModTime updates the file's access and modification times.
func (p *LocalPath) SetModTime(ctx context.Context, t time.Time) error {
	return p.mutate(ctx, func() error {
		return os.Chtimes(p.underlyingPath, t, t)
	})
}

// OpenWritable returns a writer over the file's content, truncating any
// existing content first. The returned writer reports the resulting location
// back to the scheduler on Close.
func (p *LocalPath) OpenWritable(ctx context.Context) (io.WriteCloser, error) {
	loc, justDownloaded, err := p.ensureMaterialised(ctx)
	if err != nil {
		return nil, err
	}

	before, _ := os.Stat(p.underlyingPath)

	f, err := os.OpenFile(p.underlyingPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, defaultFileMode)
	if err != nil {
		return nil, err
	}

	return &reportingWriteCloser{
		f: f, p: p, ctx: ctx, loc: loc, justDownloaded: justDownloaded, before: before,
	}, nil
}

type reportingWriteCloser struct {
	f              *os.File
	p              *LocalPath
	ctx            context.Context //nolint:containedctx // bound to the handle's lifetime, not a request
	loc            schedulerclient.FileLocation
	justDownloaded bool
	before         os.FileInfo
}

func (w *reportingWriteCloser) Write(b []byte) (int, error) {
	return w.f.Write(b)
}

func (w *reportingWriteCloser) Close() error {
	if err := w.f.Close(); err != nil {
		return err
	}

	return w.p.reportAfterMutation(w.ctx, w.loc, w.before, w.justDownloaded)
}

// mutate performs the download-on-write promotion around fn: it ensures the
// file is local before fn runs, then compares mtimes to decide whether to
// report an overwrite, a fresh add, or nothing back to the scheduler.
func (p *LocalPath) mutate(ctx context.Context, fn func() error) error {
	loc, justDownloaded, err := p.ensureMaterialised(ctx)
	if err != nil {
		return err
	}

	before, _ := os.Stat(p.underlyingPath)

	if err := fn(); err != nil {
		return err
	}

	return p.reportAfterMutation(ctx, loc, before, justDownloaded)
}

func (p *LocalPath) reportAfterMutation(ctx context.Context, loc schedulerclient.FileLocation,
	before os.FileInfo, justDownloaded bool,
) error {
	after, err := os.Stat(p.underlyingPath)
	if err != nil {
		return err
	}

	mtimeChanged := before == nil || !after.ModTime().Equal(before.ModTime())

	switch {
	case mtimeChanged:
		return p.client.AddFileLocation(ctx, p.underlyingPath, after.Size(), after.ModTime(),
			loc.LocationWrapperID, p.currentNode, true)
	case justDownloaded:
		return p.client.AddFileLocation(ctx, p.underlyingPath, after.Size(), after.ModTime(),
			loc.LocationWrapperID, p.currentNode, false)
	default:
		return nil
	}
}

// ensureMaterialised asks the scheduler where this path currently lives,
// materialises any symlinks it reports, and downloads the file if it isn't
// already on this engine. The returned bool reports whether this particular
// call performed the download.
func (p *LocalPath) ensureMaterialised(ctx context.Context) (schedulerclient.FileLocation, bool, error) {
	loc, err := p.client.GetFileLocation(ctx, p.underlyingPath)
	if err != nil {
		return loc, false, fmt.Errorf("localpath: %s: %w", p.underlyingPath, err)
	}

	p.materialiseSymlinks(loc)

	if loc.SameAsEngine {
		return loc, false, nil
	}

	didDownload, err := p.ensureDownloaded(ctx, loc)

	return loc, didDownload, err
}

// materialiseSymlinks creates the symlinks the scheduler reports for this
// location, once per LocalPath instance. Failures are logged and otherwise
// ignored: a missing symlink degrades the task's view of the filesystem, it
// doesn't invalidate the file content itself.
func (p *LocalPath) materialiseSymlinks(loc schedulerclient.FileLocation) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.symlinksMaterialised || len(loc.Symlinks) == 0 {
		p.symlinksMaterialised = true

		return
	}

	var errs error

	// link.Src is where the link is created; link.Dst is what it points to.
	for _, link := range loc.Symlinks {
		if _, err := os.Lstat(link.Src); err == nil {
			if err := os.RemoveAll(link.Src); err != nil {
				errs = multierror.Append(errs, err)

				continue
			}
		} else if err := os.MkdirAll(filepath.Dir(link.Src), defaultDirMode); err != nil {
			errs = multierror.Append(errs, err)

			continue
		}

		if err := os.Symlink(link.Dst, link.Src); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if errs != nil {
		p.log.Warn("symlink materialisation had failures", "path", p.underlyingPath, "err", errs)
	}

	p.symlinksMaterialised = true
}

// ensureDownloaded fetches the file over FTP if it isn't already downloaded.
// Guarded by p.mu so concurrent callers on the same LocalPath serialise
// rather than racing on the same fetch; this never blocks unrelated
// LocalPath instances.
func (p *LocalPath) ensureDownloaded(ctx context.Context, loc schedulerclient.FileLocation) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.downloaded {
		return false, nil
	}

	if err := p.downloadViaFTP(ctx, loc); err != nil {
		return false, err
	}

	p.downloaded = true

	return true, nil
}

// downloadViaFTP fetches loc's content to p.underlyingPath, retrying up to
// ftpMaxAttempts times with 2^trial millisecond backoff, re-querying the
// owning node's daemon address before every retry in case it was
// rescheduled in the meantime.
func (p *LocalPath) downloadViaFTP(ctx context.Context, loc schedulerclient.FileLocation) error {
	policy := internal.ExponentialFTPPolicy(ftpMaxAttempts)
	daemon := loc.Daemon

	return internal.Retry(policy, func(error) bool { return true }, func(attempt int) error {
		if attempt > 0 {
			d, err := p.client.GetDaemonOnNode(ctx, loc.Node)
			if err != nil {
				return err
			}

			daemon = d
		}

		return p.fetchAndWrite(daemon, loc.Path)
	})
}

func (p *LocalPath) fetchAndWrite(daemon, remotePath string) error {
	pool := poolFor(daemon)

	receipt, err := pool.Request(1)
	if err != nil {
		return err
	}

	if !pool.WaitUntilGranted(receipt) {
		return fmt.Errorf("localpath: timed out waiting for an FTP slot on %s", daemon)
	}
	defer pool.Release(receipt)

	rc, err := dialAndRetrieve(daemon, remotePath)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(p.underlyingPath), defaultDirMode); err != nil {
		return err
	}

	f, err := os.Create(p.underlyingPath)
	if err != nil {
		return err
	}
	defer f.Close()

	start := time.Now()

	n, err := io.Copy(f, rc)
	if err != nil {
		return err
	}

	if elapsed := time.Since(start).Seconds(); elapsed > 0 {
		recordThroughput(p.log, daemon, float64(n)/elapsed)
	}

	return nil
}

// ftpStream closes both the RETR response and the control connection it came
// from, so every successful fetch leaves no connections dangling.
type ftpStream struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (s *ftpStream) Read(b []byte) (int, error) {
	return s.resp.Read(b)
}

func (s *ftpStream) Close() error {
	respErr := s.resp.Close()
	quitErr := s.conn.Quit()

	if respErr != nil {
		return respErr
	}

	return quitErr
}

func dialAndRetrieve(daemon, remotePath string) (io.ReadCloser, error) {
	conn, err := ftp.Dial(daemon, ftp.DialWithTimeout(ftpDialTimeout))
	if err != nil {
		return nil, fmt.Errorf("localpath: dialing %s: %w", daemon, err)
	}

	if err := conn.Login(ftpUser, ftpPass); err != nil {
		conn.Quit()

		return nil, fmt.Errorf("localpath: logging in to %s: %w", daemon, err)
	}

	resp, err := conn.Retr(remotePath)
	if err != nil {
		conn.Quit()

		return nil, fmt.Errorf("localpath: retrieving %s from %s: %w", remotePath, daemon, err)
	}

	return &ftpStream{resp: resp, conn: conn}, nil
}
