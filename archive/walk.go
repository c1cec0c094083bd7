// Package archive enumerates the text members of log and source bundles:
// directories, zip files and zip-in-zip log archives.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyBundle is returned when a bundle yields no entries.
var ErrEmptyBundle = errors.New("bundle has no entries")

// Entry is one decoded member. Path is the virtual path
// ("outer.zip:inner.log.zip:innermost.log"); Seq is the enumeration order.
type Entry struct {
	Path     string
	Seq      int
	Text     string
	Encoding string
}

// Filter reports whether a member (by virtual path) should be decoded.
type Filter func(name string) bool

type Options struct {
	Filter      Filter
	Concurrency int
	// Encodings is the decode chain; empty means DefaultEncodings.
	Encodings []string
	Logger    *slog.Logger
}

type Stats struct {
	Entries int
	Skipped int
}

func (o Options) accept(name string) bool {
	return o.Filter == nil || o.Filter(name)
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) concurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return 4
}

type member struct {
	path string
	load func() ([]byte, error)
}

// Walk enumerates root, which may be a directory (recursive, lexical order),
// a .zip file or a single file, and calls fn for every accepted member.
// Members are decoded concurrently but fn is never called concurrently.
func Walk(ctx context.Context, root string, opts Options, fn func(Entry) error) (Stats, error) {
	var st Stats
	info, err := os.Stat(root)
	if err != nil {
		return st, err
	}

	var members []member
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	switch {
	case info.IsDir():
		members, closers, err = listDir(root, opts, &st)
		if err != nil {
			return st, err
		}
	case isZipName(root):
		rc, err := zip.OpenReader(root)
		if err != nil {
			return st, fmt.Errorf("open %s: %w", root, err)
		}
		closers = append(closers, rc)
		members = listZip(filepath.Base(root), &rc.Reader, opts, &st, false)
	default:
		name := filepath.Base(root)
		if opts.accept(name) {
			members = append(members, member{path: name, load: func() ([]byte, error) { return os.ReadFile(root) }})
		}
	}
	return run(ctx, members, opts, st, fn)
}

// WalkBytes is Walk for an in-memory bundle. name decides whether data is
// treated as a zip; data starting with a zip signature is always a zip.
func WalkBytes(ctx context.Context, name string, data []byte, opts Options, fn func(Entry) error) (Stats, error) {
	var st Stats
	if len(data) == 0 {
		return st, fmt.Errorf("%s: %w", name, ErrEmptyBundle)
	}
	var members []member
	if isZipName(name) || bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return st, fmt.Errorf("open %s: %w", name, err)
		}
		members = listZip(path.Base(filepath.ToSlash(name)), zr, opts, &st, false)
	} else {
		base := path.Base(filepath.ToSlash(name))
		if opts.accept(base) {
			members = append(members, member{path: base, load: func() ([]byte, error) { return data, nil }})
		}
	}
	st, err := run(ctx, members, opts, st, fn)
	if errors.Is(err, ErrEmptyBundle) {
		return st, fmt.Errorf("%s: %w", name, err)
	}
	return st, err
}

func listDir(root string, opts Options, st *Stats) ([]member, []io.Closer, error) {
	var members []member
	var closers []io.Closer
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if isZipName(p) {
			rc, err := zip.OpenReader(p)
			if err != nil {
				st.Skipped++
				opts.logger().Warn("skip unreadable zip", "path", rel, "err", err)
				return nil
			}
			closers = append(closers, rc)
			members = append(members, listZip(rel, &rc.Reader, opts, st, false)...)
			return nil
		}
		if !opts.accept(rel) {
			return nil
		}
		members = append(members, member{path: rel, load: func() ([]byte, error) { return os.ReadFile(p) }})
		return nil
	})
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, nil, err
	}
	return members, closers, nil
}

// listZip lists the file members of zr. Members named *.log.zip are opened
// and expanded one level; archives inside those are left as plain members.
func listZip(prefix string, zr *zip.Reader, opts Options, st *Stats, nested bool) []member {
	var out []member
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := prefix + ":" + f.Name
		if !nested && hasSuffixFold(f.Name, ".log.zip") {
			data, err := readZipFile(f)
			if err != nil {
				st.Skipped++
				opts.logger().Warn("skip unreadable nested archive", "path", name, "err", err)
				continue
			}
			inner, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
			if err != nil {
				st.Skipped++
				opts.logger().Warn("skip corrupt nested archive", "path", name, "err", err)
				continue
			}
			out = append(out, listZip(name, inner, opts, st, true)...)
			continue
		}
		if !opts.accept(name) {
			continue
		}
		out = append(out, member{path: name, load: func() ([]byte, error) { return readZipFile(f) }})
	}
	return out
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func run(ctx context.Context, members []member, opts Options, st Stats, fn func(Entry) error) (Stats, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency())

	var mu sync.Mutex
	for i, m := range members {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := m.load()
			if err != nil {
				mu.Lock()
				st.Skipped++
				mu.Unlock()
				opts.logger().Warn("skip unreadable member", "path", m.path, "err", err)
				return nil
			}
			text, enc := Decode(data, opts.Encodings)

			mu.Lock()
			defer mu.Unlock()
			st.Entries++
			return fn(Entry{Path: m.path, Seq: i, Text: text, Encoding: enc})
		})
	}
	if err := g.Wait(); err != nil {
		return st, err
	}
	if err := ctx.Err(); err != nil {
		return st, err
	}
	if st.Entries == 0 {
		return st, ErrEmptyBundle
	}
	return st, nil
}

func isZipName(name string) bool {
	return hasSuffixFold(name, ".zip")
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
