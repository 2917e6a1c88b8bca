package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadLifecycleDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("NATS_SUBJECT", "")
	t.Setenv("REPO_BACKEND", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("MAX_UPLOAD_BYTES", "")
	t.Setenv("SWEEP_STALE_AFTER", "")
	t.Setenv("SWEEP_INTERVAL", "")
	t.Setenv("PROCESS_TIMEOUT", "")

	cfg := Load()
	if cfg.NATSSubject != "predictions.dispatch" {
		t.Fatalf("expected default dispatch subject, got %q", cfg.NATSSubject)
	}
	if cfg.RepoBackend != "postgres" {
		t.Fatalf("expected default repo backend postgres, got %q", cfg.RepoBackend)
	}
	if cfg.StorageBackend != "local" {
		t.Fatalf("expected default storage backend local, got %q", cfg.StorageBackend)
	}
	if cfg.MaxUploadBytes != 16<<20 {
		t.Fatalf("expected default upload cap 16MiB, got %d", cfg.MaxUploadBytes)
	}
	if cfg.SweepStaleAfter != 10*time.Minute {
		t.Fatalf("expected default stale deadline 10m, got %s", cfg.SweepStaleAfter)
	}
	if cfg.SweepInterval != time.Minute {
		t.Fatalf("expected default sweep interval 1m, got %s", cfg.SweepInterval)
	}
	if cfg.ProcessTimeout != 3*time.Minute {
		t.Fatalf("expected default process timeout 3m, got %s", cfg.ProcessTimeout)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REPO_BACKEND", "memory")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "recordings")
	t.Setenv("SWEEP_STALE_AFTER", "25m")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("MAX_UPLOAD_BYTES", "1048576")

	cfg := Load()
	if cfg.RepoBackend != "memory" {
		t.Fatalf("expected repo backend override, got %q", cfg.RepoBackend)
	}
	if cfg.StorageBackend != "s3" {
		t.Fatalf("expected storage backend override, got %q", cfg.StorageBackend)
	}
	if cfg.S3Bucket != "recordings" {
		t.Fatalf("expected bucket override, got %q", cfg.S3Bucket)
	}
	if cfg.SweepStaleAfter != 25*time.Minute {
		t.Fatalf("expected stale deadline 25m, got %s", cfg.SweepStaleAfter)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rate limit 2.5 rps, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.MaxUploadBytes != 1<<20 {
		t.Fatalf("expected upload cap 1MiB, got %d", cfg.MaxUploadBytes)
	}
}

func TestLoadIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SWEEP_STALE_AFTER", "not-a-duration")
	t.Setenv("API_MAX_CONNS", "many")

	cfg := Load()
	if cfg.SweepStaleAfter != 10*time.Minute {
		t.Fatalf("expected fallback stale deadline, got %s", cfg.SweepStaleAfter)
	}
	if cfg.APIMaxConns != 256 {
		t.Fatalf("expected fallback max conns, got %d", cfg.APIMaxConns)
	}
}

func TestLoadAppliesConfigFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	overlay := "API_PORT: 9999\nSWEEP_STALE_AFTER: 5m\nAPI_RATE_LIMIT_RPS: 4\n"
	if err := os.WriteFile(path, []byte(overlay), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("API_PORT", "")
	t.Setenv("SWEEP_STALE_AFTER", "")
	t.Setenv("API_RATE_LIMIT_RPS", "")

	cfg := Load()
	if cfg.APIPort != "9999" {
		t.Fatalf("expected file port 9999, got %q", cfg.APIPort)
	}
	if cfg.SweepStaleAfter != 5*time.Minute {
		t.Fatalf("expected file stale deadline 5m, got %s", cfg.SweepStaleAfter)
	}
	if cfg.APIRateLimitRPS != 4 {
		t.Fatalf("expected file rate limit 4 rps, got %v", cfg.APIRateLimitRPS)
	}
}

func TestLoadEnvironmentBeatsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("API_PORT: 9999\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("API_PORT", "7777")

	cfg := Load()
	if cfg.APIPort != "7777" {
		t.Fatalf("expected environment to win, got %q", cfg.APIPort)
	}
}
