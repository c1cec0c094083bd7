package main

import (
	"strings"
	"time"

	"oht-analyzer/config"
)

// flagValues holds raw flag values. A value only wins over the config file
// when its flag was set on the command line.
type flagValues struct {
	configPath   string
	db           string
	rules        string
	logLevel     string
	logJSON      bool
	debug        bool
	required     []string
	concurrency  int
	timeout      time.Duration
	pollInterval time.Duration
	encodings    []string
	contextLines int
	metricsFile  string
	sources      map[string]string
}

type settings struct {
	DB           string
	Rules        string
	LogLevel     string
	LogJSON      bool
	Debug        bool
	Required     []string
	Sources      map[string]string
	Concurrency  int
	Timeout      time.Duration
	PollInterval time.Duration
	Encodings    []string
	ContextLines int
	MetricsFile  string
}

const defaultContextLines = 3

func mergeSettings(file *config.FileConfig, fv flagValues, changed func(string) bool) settings {
	if file == nil {
		file = &config.FileConfig{}
	}
	fc := file.WithDefaults()

	s := settings{
		DB:           fc.DB,
		Rules:        fc.Rules,
		LogLevel:     fc.LogLevel,
		LogJSON:      fc.LogJSON,
		Debug:        fc.Debug,
		Required:     fc.Required(),
		Sources:      fc.Sources.Paths(),
		Concurrency:  fc.Concurrency,
		Timeout:      fc.Timeout,
		PollInterval: fc.PollInterval,
		Encodings:    fc.Encodings,
		ContextLines: fc.ContextLines,
		MetricsFile:  fc.MetricsFile,
	}
	if s.ContextLines == 0 {
		s.ContextLines = defaultContextLines
	}

	if changed("db") {
		s.DB = fv.db
	}
	if changed("rules") {
		s.Rules = fv.rules
	}
	if changed("log-level") {
		s.LogLevel = fv.logLevel
	}
	if changed("log-json") {
		s.LogJSON = fv.logJSON
	}
	if changed("debug") {
		s.Debug = fv.debug
	}
	if changed("require") {
		s.Required = cleanList(fv.required)
	}
	if changed("concurrency") {
		s.Concurrency = fv.concurrency
	}
	if changed("timeout") {
		s.Timeout = fv.timeout
	}
	if changed("poll-interval") {
		s.PollInterval = fv.pollInterval
	}
	if changed("encodings") {
		s.Encodings = cleanList(fv.encodings)
	}
	if changed("context-lines") {
		s.ContextLines = fv.contextLines
	}
	if changed("metrics-file") {
		s.MetricsFile = fv.metricsFile
	}
	for id, p := range fv.sources {
		if strings.TrimSpace(p) != "" {
			s.Sources[id] = strings.TrimSpace(p)
		}
	}
	return s
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
