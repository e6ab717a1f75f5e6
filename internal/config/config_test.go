package config

import (
	"runtime"
	"testing"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("VANITY_THREADS", "")
	t.Setenv("VANITY_OUT_DIR", "")
	t.Setenv("VANITY_NTFY", "")
	t.Setenv("VANITY_STOP_AFTER_MATCH", "")

	cfg := FromEnv()
	if cfg.Threads != runtime.NumCPU() {
		t.Errorf("Threads = %d, want %d", cfg.Threads, runtime.NumCPU())
	}
	if cfg.OutDir != "out" {
		t.Errorf("OutDir = %q, want out", cfg.OutDir)
	}
	if cfg.NotifyEndpoint != "" {
		t.Errorf("NotifyEndpoint = %q, want empty", cfg.NotifyEndpoint)
	}
	if cfg.StopAfterMatch {
		t.Error("StopAfterMatch should default to false")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("VANITY_THREADS", "3")
	t.Setenv("VANITY_OUT_DIR", "/tmp/keys")
	t.Setenv("VANITY_NTFY", "my-topic")
	t.Setenv("VANITY_STOP_AFTER_MATCH", "true")

	cfg := FromEnv()
	if cfg.Threads != 3 {
		t.Errorf("Threads = %d, want 3", cfg.Threads)
	}
	if cfg.OutDir != "/tmp/keys" {
		t.Errorf("OutDir = %q", cfg.OutDir)
	}
	if cfg.NotifyEndpoint != "my-topic" {
		t.Errorf("NotifyEndpoint = %q", cfg.NotifyEndpoint)
	}
	if !cfg.StopAfterMatch {
		t.Error("StopAfterMatch should be true")
	}
}

func TestFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("VANITY_THREADS", "-2")
	t.Setenv("VANITY_STOP_AFTER_MATCH", "maybe")

	cfg := FromEnv()
	if cfg.Threads != runtime.NumCPU() {
		t.Errorf("Threads = %d, want %d", cfg.Threads, runtime.NumCPU())
	}
	if cfg.StopAfterMatch {
		t.Error("unparseable bool should fall back to false")
	}

	t.Setenv("VANITY_THREADS", "lots")
	if got := FromEnv().Threads; got != runtime.NumCPU() {
		t.Errorf("Threads = %d, want %d", got, runtime.NumCPU())
	}
}
