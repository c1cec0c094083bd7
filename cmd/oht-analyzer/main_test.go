package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oht-analyzer/config"
	"oht-analyzer/rules"
	"oht-analyzer/symbols"
)

func TestMergeSettings_FlagOnlyWinsWhenSet(t *testing.T) {
	off := false
	file := &config.FileConfig{
		DB:                   "file.db",
		Rules:                "file-rules.yaml",
		Concurrency:          8,
		Timeout:              time.Minute,
		RequireBothCodebases: &off,
		Sources:              config.SourcesConfig{Items: []config.SourceConfig{{Codebase: "vehicle", Path: "v.zip"}}},
	}
	fv := flagValues{
		db:          "flag.db",
		rules:       "flag-rules.yaml",
		concurrency: 2,
		timeout:     time.Second,
		required:    []string{"vehicle", " "},
		sources:     map[string]string{"motion": "m.zip"},
	}

	s := mergeSettings(file, fv, func(string) bool { return false })
	assert.Equal(t, "file.db", s.DB)
	assert.Equal(t, 8, s.Concurrency)
	assert.Equal(t, time.Minute, s.Timeout)
	assert.Empty(t, s.Required)
	assert.Equal(t, defaultContextLines, s.ContextLines)
	assert.Equal(t, map[string]string{"vehicle": "v.zip", "motion": "m.zip"}, s.Sources)

	set := map[string]bool{"db": true, "concurrency": true, "require": true}
	s = mergeSettings(file, fv, func(n string) bool { return set[n] })
	assert.Equal(t, "flag.db", s.DB)
	assert.Equal(t, "file-rules.yaml", s.Rules)
	assert.Equal(t, 2, s.Concurrency)
	assert.Equal(t, []string{"vehicle"}, s.Required)

	s = mergeSettings(nil, flagValues{}, func(string) bool { return false })
	assert.Equal(t, config.DefaultDB, s.DB)
	assert.Equal(t, []string{symbols.Vehicle, symbols.Motion}, s.Required)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_IndexAnalyzeLookupFeedback(t *testing.T) {
	dir := t.TempDir()
	vehicle := filepath.Join(dir, "vehicle")
	motion := filepath.Join(dir, "motion")
	require.NoError(t, os.MkdirAll(vehicle, 0o755))
	require.NoError(t, os.MkdirAll(motion, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(vehicle, "err.h"), []byte("#define ERR_AXIS2_SERVO_OFFED 960\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(motion, "Err.cs"), []byte("public const int ERR_BUMPER_PRESS = 464;\n"), 0o644))
	logPath := filepath.Join(dir, "AMC_Recv_01.log")
	require.NoError(t, os.WriteFile(logPath, []byte("[10:00:00.000] [E960] servo off\n"), 0o644))

	db := filepath.Join(dir, "index.db")
	rulesPath := filepath.Join(dir, "rules.yaml")
	metricsPath := filepath.Join(dir, "metrics.prom")
	common := []string{"--db", db, "--rules", rulesPath}

	out, err := execute(t, append([]string{"index", "--vehicle", vehicle, "--motion", motion}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "vehicle  files=1 symbols=1")
	assert.Contains(t, out, "motion   files=1 symbols=1")

	out, err = execute(t, append([]string{"analyze", "--metrics-file", metricsPath, logPath}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "- E960 (ERR_AXIS2_SERVO_OFFED): count=1 window=10:00:00.000 ~ 10:00:00.000 | precursor=NO | driving=UNSURE")
	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "oht_analyzer_runs_total")

	out, err = execute(t, append([]string{"analyze", "--json", logPath}, common...)...)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Len(t, doc["banners"], 1)
	assert.Len(t, doc["diagnostics"], 1)
	analyzeJSON = false

	out, err = execute(t, append([]string{"lookup", "E464", "ERR_AXIS2_SERVO_OFFED"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "E464\tERR_BUMPER_PRESS\tmotion")
	assert.Contains(t, out, "E960\tERR_AXIS2_SERVO_OFFED\tvehicle")

	_, err = execute(t, append([]string{"lookup", "E123"}, common...)...)
	require.Error(t, err)

	out, err = execute(t, append([]string{"feedback", "--case", "c1", "--precursor", `link\s+flap`}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "rules changed=true")

	out, err = execute(t, append([]string{"rules", "validate"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "precursors=11")

	out, err = execute(t, append([]string{"feedback", "--list"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "c1")
	feedbackList = false
}

func TestCLI_AnalyzeWithoutIndexFails(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "User_01.log")
	require.NoError(t, os.WriteFile(logPath, []byte("[00:00:01] [E101]\n"), 0o644))

	_, err := execute(t, "analyze", "--db", filepath.Join(dir, "none.db"), "--rules", filepath.Join(dir, "rules.yaml"), logPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required source symbol maps missing")
}

func TestCLI_FeedbackNotStoredWhenRulesSaveFails(t *testing.T) {
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.yaml")
	common := []string{"--db", filepath.Join(dir, "index.db"), "--rules", rulesPath}

	saveRules = func(string, rules.Document) error { return errors.New("disk full") }
	t.Cleanup(func() {
		saveRules = rules.SaveDocument
		feedbackConfusions = nil
	})

	_, err := execute(t, append([]string{"feedback", "--case", "c2", "--confusion", `Node\d+`}, common...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save rules: disk full")
	assert.NoFileExists(t, rulesPath)

	out, err := execute(t, append([]string{"feedback", "--list"}, common...)...)
	feedbackList = false
	require.NoError(t, err)
	assert.NotContains(t, out, "c2")
}
