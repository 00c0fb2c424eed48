package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "symd.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, "symbol_dir: /var/symd\nbucket_url: s3://bucket/sdks\nbucket_region: us-east-1\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SyncInterval != 60*time.Second {
		t.Errorf("SyncInterval = %v, want 60s", cfg.SyncInterval)
	}
	if cfg.HealthcheckTTL != 2*time.Minute {
		t.Errorf("HealthcheckTTL = %v, want 2m", cfg.HealthcheckTTL)
	}
	if cfg.ServerThreads < 1 {
		t.Errorf("ServerThreads = %d, want >= 1", cfg.ServerThreads)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadRejectsMissingSymbolDir(t *testing.T) {
	path := writeConfigFile(t, "bucket_url: s3://bucket\nbucket_region: us-east-1\n")
	if _, err := Load(path); err == nil {
		t.Error("expected Load to reject a config missing symbol_dir")
	}
}

func TestLoadRejectsNonS3BucketURL(t *testing.T) {
	path := writeConfigFile(t, "symbol_dir: /var/symd\nbucket_url: https://bucket\nbucket_region: us-east-1\n")
	if _, err := Load(path); err == nil {
		t.Error("expected Load to reject a non-s3:// bucket_url")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/symd.yaml"); err == nil {
		t.Error("expected Load to fail for a missing file")
	}
}

func TestEnvOverride(t *testing.T) {
	path := writeConfigFile(t, "symbol_dir: /var/symd\nbucket_url: s3://bucket\nbucket_region: us-east-1\n")
	t.Setenv(envBucketRegion, "eu-west-1")
	t.Setenv(envSyncInterval, "30s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BucketRegion != "eu-west-1" {
		t.Errorf("BucketRegion = %q, want eu-west-1 (env override)", cfg.BucketRegion)
	}
	if cfg.SyncInterval != 30*time.Second {
		t.Errorf("SyncInterval = %v, want 30s (env override)", cfg.SyncInterval)
	}
}
