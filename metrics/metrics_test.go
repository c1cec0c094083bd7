package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePass(t *testing.T) {
	r := New()
	r.ObservePass(PassCounts{Entries: 3, Skipped: 1, Lines: 40, Anchors: 5, Windows: 2}, time.Second, nil)
	r.ObservePass(PassCounts{}, time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.entries.WithLabelValues("decoded")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.anchors))
	assert.Equal(t, 40.0, testutil.ToFloat64(r.lines))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.ObservePass(PassCounts{Anchors: 1}, time.Second, nil)
	r.SetSymbols("vehicle", 3)
	r.RulesReloaded(nil)
	require.NoError(t, r.WriteTextfile("ignored"))
	assert.Nil(t, r.Registry())
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.SetSymbols("vehicle", 12)
	r.RulesReloaded(nil)

	p := filepath.Join(t.TempDir(), "oht.prom")
	require.NoError(t, r.WriteTextfile(p))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), `oht_analyzer_indexed_symbols{codebase="vehicle"} 12`)
	assert.Contains(t, string(b), `oht_analyzer_rules_reloads_total{result="ok"} 1`)
}
