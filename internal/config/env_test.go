package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	if cfg.Resolver.BatchConcurrency != 4 {
		t.Errorf("BatchConcurrency = %d, want 4", cfg.Resolver.BatchConcurrency)
	}
	if cfg.Resolver.FallbackWidth != 595 || cfg.Resolver.FallbackHeight != 842 {
		t.Errorf("fallback = %gx%g, want 595x842", cfg.Resolver.FallbackWidth, cfg.Resolver.FallbackHeight)
	}
	if cfg.Fetch.HTTPTimeout != 60*time.Second {
		t.Errorf("HTTPTimeout = %v, want 60s", cfg.Fetch.HTTPTimeout)
	}
	if cfg.Fetch.Retries != 2 {
		t.Errorf("Retries = %d, want 2", cfg.Fetch.Retries)
	}
	if cfg.Cache.Enabled {
		t.Error("cache enabled by default")
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Server.Port)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("RESOLVE_CONCURRENCY", "9")
	t.Setenv("RESOLVE_TIMEOUT", "5s")
	t.Setenv("FALLBACK_PAGE_WIDTH", "612")
	t.Setenv("FALLBACK_PAGE_HEIGHT", "792")
	t.Setenv("FETCH_RETRIES", "0")
	t.Setenv("GEOMETRY_CACHE_ENABLED", "true")
	t.Setenv("GEOMETRY_CACHE_TTL", "1h")
	t.Setenv("AXIOM_DATASET", "prod")

	cfg := FromEnv()

	if cfg.Resolver.BatchConcurrency != 9 {
		t.Errorf("BatchConcurrency = %d, want 9", cfg.Resolver.BatchConcurrency)
	}
	if cfg.Resolver.ResolveTimeout != 5*time.Second {
		t.Errorf("ResolveTimeout = %v, want 5s", cfg.Resolver.ResolveTimeout)
	}
	if cfg.Resolver.FallbackWidth != 612 || cfg.Resolver.FallbackHeight != 792 {
		t.Errorf("fallback = %gx%g, want 612x792", cfg.Resolver.FallbackWidth, cfg.Resolver.FallbackHeight)
	}
	if cfg.Fetch.Retries != 0 {
		t.Errorf("Retries = %d, want 0", cfg.Fetch.Retries)
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTL != time.Hour {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Axiom.Dataset != "prod_lazydoc" {
		t.Errorf("Dataset = %q, want prod_lazydoc", cfg.Axiom.Dataset)
	}
}

func TestFromEnvBadValuesFallBack(t *testing.T) {
	t.Setenv("RESOLVE_CONCURRENCY", "lots")
	t.Setenv("FETCH_HTTP_TIMEOUT", "soon")

	cfg := FromEnv()
	if cfg.Resolver.BatchConcurrency != 4 {
		t.Errorf("BatchConcurrency = %d, want default 4", cfg.Resolver.BatchConcurrency)
	}
	if cfg.Fetch.HTTPTimeout != 60*time.Second {
		t.Errorf("HTTPTimeout = %v, want default 60s", cfg.Fetch.HTTPTimeout)
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on"} {
		if !parseBool(v) {
			t.Errorf("parseBool(%q) = false", v)
		}
	}
	for _, v := range []string{"", "0", "false", "off", "nope"} {
		if parseBool(v) {
			t.Errorf("parseBool(%q) = true", v)
		}
	}
}
