package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DEFAULT_STORE_ID", "")
	t.Setenv("BALANCE_CACHE_TTL_SECONDS", "")
	t.Setenv("STRICT_CATALOG_REFS", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.StoreID != "main-salon" {
		t.Fatalf("expected default store id main-salon, got %q", cfg.StoreID)
	}
	if cfg.BalanceCacheTTLSeconds != 30 {
		t.Fatalf("expected default balance TTL 30, got %d", cfg.BalanceCacheTTLSeconds)
	}
	if cfg.StrictCatalogRefs {
		t.Fatalf("expected lenient catalog refs by default")
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected address :8080, got %q", cfg.Address())
	}
}

func TestLoadStrictCatalogRefs(t *testing.T) {
	t.Setenv("STRICT_CATALOG_REFS", "true")

	cfg := Load()
	if !cfg.StrictCatalogRefs {
		t.Fatalf("expected strict catalog refs when enabled")
	}
}
