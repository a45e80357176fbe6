// Copyright (C) 2025 BrandPulse Labs (eng@brandpulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"  ERROR ", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestFileLogging(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{
		Level:   LevelDebug,
		Service: "insights",
		LogDir:  dir,
		Quiet:   true,
	})
	logger.Info("cache warmed", "namespace", "orders-insights", "slots", 3)
	logger.Debug("detail line")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	name := "insights_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("file entries must be JSON: %v", err)
	}
	if entry["service"] != "insights" {
		t.Errorf("service attribute = %v, want insights", entry["service"])
	}
	if entry["msg"] != "cache warmed" || entry["namespace"] != "orders-insights" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{
		Level:   LevelWarn,
		Service: "insights",
		LogDir:  dir,
		Quiet:   true,
	})
	logger.Info("suppressed")
	logger.Warn("kept")
	_ = logger.Close()

	name := "insights_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if got := strings.Count(string(data), "\n"); got != 1 {
		t.Errorf("got %d entries, want 1 (info filtered)", got)
	}
	if !strings.Contains(string(data), "kept") {
		t.Error("warn entry missing")
	}
}

func TestWithCarriesAttributes(t *testing.T) {
	dir := t.TempDir()

	logger := New(Config{Level: LevelInfo, Service: "insights", LogDir: dir, Quiet: true})
	scoped := logger.With("subscriber_id", "abc-123")
	scoped.Info("connected")
	_ = logger.Close()

	name := "insights_" + time.Now().Format("2006-01-02") + ".log"
	data, _ := os.ReadFile(filepath.Join(dir, name))
	if !strings.Contains(string(data), "abc-123") {
		t.Error("With attribute missing from entry")
	}
}

func TestCloseWithoutFileIsNil(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close without file: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
