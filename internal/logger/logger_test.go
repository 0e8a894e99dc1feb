package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smartmark.log")
	log := New(Options{Level: "info", Pretty: false, File: path})

	log.Debug("hidden below info")
	log.Info("bookmark created", String("owner", "user-1"), Int64("id", 7))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"bookmark created"`) || !strings.Contains(out, `"owner":"user-1"`) {
		t.Errorf("log file missing entry: %s", out)
	}
	if strings.Contains(out, "hidden below info") {
		t.Errorf("debug entry written at info level: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		if parseLevel(lvl) == nil {
			t.Errorf("parseLevel(%q) = nil", lvl)
		}
	}
	if parseLevel("verbose") != nil {
		t.Error("unknown level should fall back to the zap default")
	}
}

func TestWithKeepsFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "with.log")
	log := New(Options{Level: "debug", File: path}).With(String("view", "v1"))
	log.Warnf("refresh took %dms", 12)
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"view":"v1"`) || !strings.Contains(string(data), "refresh took 12ms") {
		t.Errorf("unexpected output: %s", data)
	}
}
