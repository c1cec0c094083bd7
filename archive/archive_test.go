package archive

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"
)

func buildZip(t *testing.T, files map[string][]byte, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func collect(t *testing.T, walk func(fn func(Entry) error) (Stats, error)) ([]Entry, Stats, error) {
	t.Helper()
	var out []Entry
	st, err := walk(func(e Entry) error {
		out = append(out, e)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, st, err
}

func paths(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}

func TestWalkDirectorySortedRelativePaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b", "z.log"), []byte("z"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.log"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pic.png"), []byte{0x89, 'P'}, 0o644))

	entries, st, err := collect(t, func(fn func(Entry) error) (Stats, error) {
		return Walk(context.Background(), root, Options{Filter: LogFilter, Concurrency: 2}, fn)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.log", "b/z.log"}, paths(entries))
	assert.Equal(t, 2, st.Entries)
	assert.Equal(t, "a", entries[0].Text)
}

func TestWalkZipWithNestedLogZip(t *testing.T) {
	inner := buildZip(t, map[string][]byte{
		"AMC_Recv_01.log": []byte("[12:00:00] inner"),
	}, []string{"AMC_Recv_01.log"})
	outer := buildZip(t, map[string][]byte{
		"logs/User_01.log":         []byte("[12:00:01] user"),
		"logs/AMC_Recv_01.log.zip": inner,
		"logs/shot.png":            {0x89},
	}, []string{"logs/User_01.log", "logs/AMC_Recv_01.log.zip", "logs/shot.png"})

	p := filepath.Join(t.TempDir(), "bundle.zip")
	require.NoError(t, os.WriteFile(p, outer, 0o644))

	entries, st, err := collect(t, func(fn func(Entry) error) (Stats, error) {
		return Walk(context.Background(), p, Options{Filter: LogFilter}, fn)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"bundle.zip:logs/User_01.log",
		"bundle.zip:logs/AMC_Recv_01.log.zip:AMC_Recv_01.log",
	}, paths(entries))
	assert.Equal(t, "[12:00:00] inner", entries[1].Text)
	assert.Equal(t, 0, st.Skipped)
}

func TestWalkBytesSkipsCorruptNestedArchive(t *testing.T) {
	outer := buildZip(t, map[string][]byte{
		"ok.log":      []byte("fine"),
		"bad.log.zip": []byte("not a zip at all"),
	}, []string{"ok.log", "bad.log.zip"})

	entries, st, err := collect(t, func(fn func(Entry) error) (Stats, error) {
		return WalkBytes(context.Background(), "up.zip", outer, Options{Filter: LogFilter}, fn)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"up.zip:ok.log"}, paths(entries))
	assert.Equal(t, 1, st.Skipped)
}

func TestWalkBytesEmptyBundle(t *testing.T) {
	_, err := WalkBytes(context.Background(), "x.zip", nil, Options{}, func(Entry) error { return nil })
	require.ErrorIs(t, err, ErrEmptyBundle)

	onlyBinary := buildZip(t, map[string][]byte{"a.png": {1}}, []string{"a.png"})
	_, err = WalkBytes(context.Background(), "x.zip", onlyBinary, Options{Filter: LogFilter}, func(Entry) error { return nil })
	require.ErrorIs(t, err, ErrEmptyBundle)
}

func TestWalkBytesRejectsCorruptTopLevelZip(t *testing.T) {
	_, err := WalkBytes(context.Background(), "x.zip", []byte("garbage"), Options{}, func(Entry) error { return nil })
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrEmptyBundle))
}

func TestWalkSourceFilter(t *testing.T) {
	src := buildZip(t, map[string][]byte{
		"src/err.h":     []byte("#define ERR_A 1"),
		"src/Main.cs":   []byte("public const int ERR_B = 2;"),
		"src/logo.bmp":  {0},
		"src/build.obj": {0},
	}, []string{"src/err.h", "src/Main.cs", "src/logo.bmp", "src/build.obj"})

	entries, _, err := collect(t, func(fn func(Entry) error) (Stats, error) {
		return WalkBytes(context.Background(), "vehicle.zip", src, Options{Filter: SourceFilter}, fn)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"vehicle.zip:src/err.h", "vehicle.zip:src/Main.cs"}, paths(entries))
}

func TestWalkCallbackErrorStops(t *testing.T) {
	src := buildZip(t, map[string][]byte{"a.log": []byte("a"), "b.log": []byte("b")}, []string{"a.log", "b.log"})
	boom := errors.New("boom")
	_, err := WalkBytes(context.Background(), "x.zip", src, Options{Concurrency: 1}, func(Entry) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestWalkHonorsCancelledContext(t *testing.T) {
	src := buildZip(t, map[string][]byte{"a.log": []byte("a")}, []string{"a.log"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WalkBytes(ctx, "x.zip", src, Options{}, func(Entry) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecodeChain(t *testing.T) {
	s, enc := Decode([]byte("\xEF\xBB\xBFhello"), nil)
	assert.Equal(t, "hello", s)
	assert.Equal(t, EncUTF8, enc)

	kr, err := korean.EUCKR.NewEncoder().String("축 오류")
	require.NoError(t, err)
	s, enc = Decode([]byte(kr), nil)
	assert.Equal(t, "축 오류", s)
	assert.Equal(t, EncEUCKR, enc)

	s, enc = Decode([]byte{'c', 'a', 'f', 0xE9}, nil)
	assert.Equal(t, "café", s)
	assert.Equal(t, EncLatin1, enc)

	s, enc = Decode([]byte{'o', 'k', 0xFF}, []string{"utf-8"})
	assert.Equal(t, "ok", s)
	assert.Equal(t, EncUTF8Lossy, enc)
}

func TestHashBytes(t *testing.T) {
	full := HashBytes([]byte("abc"), 0)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", full)
	assert.Equal(t, full[:12], HashBytes([]byte("abc"), 12))
}

func TestFilters(t *testing.T) {
	assert.True(t, SourceFilter("x.zip:src/A.HPP"))
	assert.False(t, SourceFilter("x.zip:src/a.log"))
	assert.True(t, LogFilter("x.zip:a.log"))
	assert.True(t, LogFilter("x.zip:noext"))
	assert.False(t, LogFilter("x.zip:a.DLL"))
}
