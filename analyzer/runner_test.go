package analyzer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oht-analyzer/metrics"
	"oht-analyzer/rules"
	"oht-analyzer/symbols"
)

func testIndex() *symbols.Index {
	v := symbols.NewSymbolMap(symbols.Vehicle)
	v.Add("960", "ERR_AXIS2_SERVO_OFFED", symbols.Provenance{File: "vehicle.zip:err.h", Kind: symbols.KindMacro, Line: 1})
	m := symbols.NewSymbolMap(symbols.Motion)
	m.Add("464", "ERR_BUMPER_PRESS", symbols.Provenance{File: "motion.zip:Err.cs", Kind: symbols.KindConst, Line: 3})
	return symbols.NewIndex(v, m)
}

func writeLogZip(t *testing.T, dir, name string, members map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for n, body := range members {
		w, err := zw.Create(n)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))
	return p
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	amc := strings.Join([]string{
		"[10:00:00.000] [E960] servo off",
		"[10:00:01.000] [E960] servo off",
		"[10:00:01.500] [E960] servo off",
		"[10:05:00.000] Error = 960",
		"[10:05:01.000] Error = 960",
		"[10:06:00.000] Node12 [E464] not an error",
		"untimed [E464]",
	}, "\n")
	net := strings.Join([]string{
		"[09:59:58.000] eth0 link down",
		"[09:59:55.000] VEL 0.0 DRIVE stop",
	}, "\n")
	p := writeLogZip(t, dir, "vehicle_logs.zip", map[string]string{
		"AMC_Recv_0101.log":    amc,
		"WirelessNet_0101.log": net,
	})

	rec := metrics.New()
	r, err := New(Config{Metrics: rec, Concurrency: 2}, rules.MustCompile(rules.Default()), testIndex())
	require.NoError(t, err)

	res, err := r.Run(context.Background(), []string{p})
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)
	assert.Equal(t, "1.0.0", res.RulesVersion)

	require.Len(t, res.Banners, 1)
	b := res.Banners[0]
	assert.Equal(t, "960", b.Code)
	assert.Equal(t, 5, b.OccurrenceCount)
	assert.Equal(t, 2, b.Windows)
	assert.Equal(t, TimeToMs(10, 0, 0, 0), b.FirstMs)
	assert.Equal(t, TimeToMs(10, 5, 1, 0), b.LastMs)
	assert.True(t, b.PrecursorPresent)
	assert.True(t, b.DriveEvidencePresent)
	assert.Equal(t, DriveConfirmed, b.DriveStatus())

	require.NotEmpty(t, res.Precursors)
	assert.Equal(t, int64(-2000), res.Precursors[0].DeltaMs)

	assert.Equal(t, 2, res.Stats.Entries)
	assert.Equal(t, 9, res.Stats.Lines)
	assert.Equal(t, 8, res.Stats.TimedLines)
	assert.Contains(t, res.Samples, "vehicle_logs.zip")
}

func TestRunTargetCodes(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "User_01.log")
	require.NoError(t, os.WriteFile(p, []byte("[00:00:01] [E101]\n[00:00:02] [E205]\n"), 0o644))

	r, err := New(Config{TargetCodes: []string{"E205"}}, rules.MustCompile(rules.Default()), testIndex())
	require.NoError(t, err)
	res, err := r.Run(context.Background(), []string{p})
	require.NoError(t, err)
	require.Len(t, res.Banners, 1)
	assert.Equal(t, "205", res.Banners[0].Code)
}

func TestRunGlobInputs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "day1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "day1", "User_01.log"), []byte("[00:00:01] [E101]\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "User_02.log"), []byte("[00:00:09] [E101]\n"), 0o644))

	r, err := New(Config{}, rules.MustCompile(rules.Default()), testIndex())
	require.NoError(t, err)
	res, err := r.Run(context.Background(), []string{filepath.Join(dir, "**", "*.log")})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.Bundles)
	require.Len(t, res.Banners, 1)
	assert.Equal(t, 2, res.Banners[0].OccurrenceCount)
}

func TestRunPreconditions(t *testing.T) {
	cat := rules.MustCompile(rules.Default())

	r, err := New(Config{}, cat, nil)
	require.NoError(t, err)
	_, err = r.Run(context.Background(), []string{"x.log"})
	require.ErrorIs(t, err, ErrSourcesMissing)

	v := symbols.NewSymbolMap(symbols.Vehicle)
	v.Add("1", "ERR_A", symbols.Provenance{})
	r, err = New(Config{}, cat, symbols.NewIndex(v))
	require.NoError(t, err)
	_, err = r.Run(context.Background(), []string{"x.log"})
	require.ErrorIs(t, err, ErrSourcesMissing)

	// an explicitly configured subset is enough
	r, err = New(Config{RequiredCodebases: []string{symbols.Vehicle}}, cat, symbols.NewIndex(v))
	require.NoError(t, err)
	_, err = r.Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoLogBundles)

	_, err = New(Config{}, nil, testIndex())
	require.Error(t, err)
}

func TestRunFailsWhenNoBundleReadable(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.zip")
	require.NoError(t, os.WriteFile(bad, []byte("not a zip"), 0o644))
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.MkdirAll(empty, 0o755))

	r, err := New(Config{}, rules.MustCompile(rules.Default()), testIndex())
	require.NoError(t, err)
	_, err = r.Run(context.Background(), []string{bad, empty, filepath.Join(dir, "missing.log")})
	require.ErrorIs(t, err, ErrNoLogEntries)
}

func TestRunSkipsBadBundleKeepsGood(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.zip")
	require.NoError(t, os.WriteFile(bad, []byte("not a zip"), 0o644))
	good := filepath.Join(dir, "User_01.log")
	require.NoError(t, os.WriteFile(good, []byte("[00:00:01] [E101]\n"), 0o644))

	r, err := New(Config{}, rules.MustCompile(rules.Default()), testIndex())
	require.NoError(t, err)
	res, err := r.Run(context.Background(), []string{bad, good})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.BundlesSkipped)
	assert.Len(t, res.Banners, 1)
}

func TestRunTimeout(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "User_01.log")
	require.NoError(t, os.WriteFile(p, []byte("[00:00:01] [E101]\n"), 0o644))

	r, err := New(Config{Timeout: time.Minute}, rules.MustCompile(rules.Default()), testIndex())
	require.NoError(t, err)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err = r.Run(ctx, []string{p})
	require.ErrorIs(t, err, ErrTimeout)
}
