package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_NormalizesAndDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	dir := t.TempDir()
	cfg := []byte("STORE_BACKEND: \"MongoDB\"\nLOG_FORMAT: \"TEXT\"\nPAGE_JITTER_MIN_MS: 4000\nPAGE_JITTER_MAX_MS: 2000\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), cfg, 0644); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(dir); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if AppConfig.StoreBackend != "mongodb" {
		t.Fatalf("StoreBackend = %q, want %q", AppConfig.StoreBackend, "mongodb")
	}
	if AppConfig.LogFormat != "text" {
		t.Fatalf("LogFormat = %q, want %q", AppConfig.LogFormat, "text")
	}
	if AppConfig.PageJitterMaxMs != 4000 {
		t.Fatalf("PageJitterMaxMs = %d, want clamp to min %d", AppConfig.PageJitterMaxMs, 4000)
	}
	if AppConfig.DedupThreshold != 10 {
		t.Fatalf("DedupThreshold = %d, want default 10", AppConfig.DedupThreshold)
	}
	if AppConfig.ImageConcurrency != 6 {
		t.Fatalf("ImageConcurrency = %d, want default 6", AppConfig.ImageConcurrency)
	}
}

func TestCookieHeader(t *testing.T) {
	old := AppConfig
	defer func() { AppConfig = old }()

	AppConfig.Cookies = ""
	AppConfig.SessData = "abc"
	if got := CookieHeader(); got != "SESSDATA=abc" {
		t.Fatalf("CookieHeader = %q", got)
	}

	AppConfig.Cookies = "SESSDATA=xyz; bili_jct=1"
	if got := CookieHeader(); got != "SESSDATA=xyz; bili_jct=1" {
		t.Fatalf("CookieHeader = %q", got)
	}
}
