package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseTuningDefaults(t *testing.T) {
	cfg, err := ParseTuning(nil)
	if err != nil {
		t.Fatalf("parse empty tuning: %v", err)
	}
	if cfg.Queues.Work != "relay.work" || cfg.Queues.Result != "relay.results" {
		t.Fatalf("unexpected default queues: %+v", cfg.Queues)
	}
	if cfg.CacheTTL() != time.Hour {
		t.Fatalf("unexpected default cache ttl: %s", cfg.CacheTTL())
	}
	if cfg.SweepInterval() != 30*time.Minute {
		t.Fatalf("unexpected default sweep interval: %s", cfg.SweepInterval())
	}
	if cfg.Delivery.MaxAttempts != 3 {
		t.Fatalf("unexpected default delivery attempts: %d", cfg.Delivery.MaxAttempts)
	}
	if cfg.PollInterval() != 10*time.Second || cfg.Poll.MaxAttempts != 30 {
		t.Fatalf("unexpected default poll tuning: %+v", cfg.Poll)
	}
}

func TestParseTuningOverrides(t *testing.T) {
	data := []byte(`
queues:
  work: jobs.out
  result: jobs.in
cache:
  ttl_seconds: 120
delivery:
  max_attempts: 5
  base_delay_ms: 100
`)
	cfg, err := ParseTuning(data)
	if err != nil {
		t.Fatalf("parse tuning: %v", err)
	}
	if cfg.Queues.Work != "jobs.out" || cfg.Queues.Result != "jobs.in" {
		t.Fatalf("queue overrides not applied: %+v", cfg.Queues)
	}
	if cfg.CacheTTL() != 2*time.Minute {
		t.Fatalf("ttl override not applied: %s", cfg.CacheTTL())
	}
	if cfg.Delivery.MaxAttempts != 5 || cfg.DeliveryBaseDelay() != 100*time.Millisecond {
		t.Fatalf("delivery overrides not applied: %+v", cfg.Delivery)
	}
	// untouched sections keep defaults
	if cfg.SweepInterval() != 30*time.Minute {
		t.Fatalf("sweep default lost: %s", cfg.SweepInterval())
	}
	if cfg.Credit.QueryCost != 1 {
		t.Fatalf("credit default lost: %+v", cfg.Credit)
	}
}

func TestParseTuningRejectsUnknownKeys(t *testing.T) {
	if _, err := ParseTuning([]byte("queues:\n  unknown: x\n")); err == nil {
		t.Fatalf("expected schema rejection for unknown key")
	}
}

func TestParseTuningRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"same queues":   "queues:\n  work: q\n  result: q\n",
		"zero ttl":      "cache:\n  ttl_seconds: 0\n",
		"zero attempts": "delivery:\n  max_attempts: 0\n",
	}
	for name, data := range cases {
		if _, err := ParseTuning([]byte(data)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadTuningMissingFileFallsBack(t *testing.T) {
	cfg, err := LoadTuning(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
	if cfg == nil || cfg.Queues.Work != "relay.work" {
		t.Fatalf("expected defaults alongside error, got %+v", cfg)
	}
}

func TestLoadTuningFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("poll:\n  interval_seconds: 2\n  max_attempts: 4\n"), 0o600); err != nil {
		t.Fatalf("write tuning file: %v", err)
	}
	cfg, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	if cfg.PollInterval() != 2*time.Second || cfg.Poll.MaxAttempts != 4 {
		t.Fatalf("file values not applied: %+v", cfg.Poll)
	}
}
