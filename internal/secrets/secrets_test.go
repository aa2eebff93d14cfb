package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestResolve_PlainValues(t *testing.T) {
	m := NewManager(EnvProvider{}, FileProvider{})
	for _, v := range []string{"sk-plain", "postgres://u:p@localhost:5432/db", "", "bolt://neo4j:7687"} {
		got, err := m.Resolve(context.Background(), v)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", v, err)
		}
		if got != v {
			t.Errorf("%q should pass through, got %q", v, got)
		}
		if m.IsReference(v) {
			t.Errorf("%q should not be a reference", v)
		}
	}
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("HRRAG_TEST_SECRET", "from-env")
	m := NewManager(EnvProvider{})

	got, err := m.Resolve(context.Background(), "env:HRRAG_TEST_SECRET")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-env" {
		t.Fatalf("expected from-env, got %q", got)
	}

	_, err = m.Resolve(context.Background(), "env:HRRAG_TEST_SECRET_MISSING_XYZ")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "api_key"), []byte("sk-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewManager(FileProvider{Dir: dir})

	got, err := m.Resolve(context.Background(), "file:api_key")
	if err != nil || got != "sk-file" {
		t.Fatalf("relative path: got %q, %v", got, err)
	}
	got, err = m.Resolve(context.Background(), "file:"+filepath.Join(dir, "api_key"))
	if err != nil || got != "sk-file" {
		t.Fatalf("absolute path: got %q, %v", got, err)
	}
	if _, err := m.Resolve(context.Background(), "file:missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_Cache(t *testing.T) {
	t.Setenv("HRRAG_ROTATING", "v1")
	m := NewManager(EnvProvider{})
	ctx := context.Background()

	if v, _ := m.Resolve(ctx, "env:HRRAG_ROTATING"); v != "v1" {
		t.Fatalf("expected v1, got %q", v)
	}
	t.Setenv("HRRAG_ROTATING", "v2")
	if v, _ := m.Resolve(ctx, "env:HRRAG_ROTATING"); v != "v1" {
		t.Fatalf("expected cached v1, got %q", v)
	}
	m.ClearCache()
	if v, _ := m.Resolve(ctx, "env:HRRAG_ROTATING"); v != "v2" {
		t.Fatalf("expected v2 after ClearCache, got %q", v)
	}
}

func TestResolveAll(t *testing.T) {
	t.Setenv("HRRAG_KEY", "sk-env")
	m := NewManager(EnvProvider{})

	key, dsn, empty := "env:HRRAG_KEY", "postgres://localhost/db", ""
	if err := m.ResolveAll(context.Background(), &key, &dsn, &empty, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "sk-env" || dsn != "postgres://localhost/db" || empty != "" {
		t.Fatalf("unexpected values %q %q %q", key, dsn, empty)
	}

	bad := "env:HRRAG_NOT_SET_XYZ"
	if err := m.ResolveAll(context.Background(), &bad); err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestVaultProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "root" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path != "/v1/secret/data/hrrag" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"data": map[string]any{"api_key": "sk-vault", "port": 5432}},
		})
	}))
	defer srv.Close()

	p, err := NewVaultProvider(VaultConfig{Address: srv.URL, Token: "root"})
	if err != nil {
		t.Fatalf("NewVaultProvider: %v", err)
	}
	m := NewManager(p)
	ctx := context.Background()

	if v, err := m.Resolve(ctx, "vault:hrrag#api_key"); err != nil || v != "sk-vault" {
		t.Fatalf("got %q, %v", v, err)
	}
	if v, err := m.Resolve(ctx, "vault:hrrag#port"); err != nil || v != "5432" {
		t.Fatalf("non-string field: got %q, %v", v, err)
	}
	if _, err := m.Resolve(ctx, "vault:hrrag#missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing field, got %v", err)
	}
	if _, err := m.Resolve(ctx, "vault:other#api_key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing path, got %v", err)
	}
	if _, err := m.Resolve(ctx, "vault:hrrag"); err == nil {
		t.Fatal("expected error for reference without field")
	}
}

func TestVaultProvider_Errors(t *testing.T) {
	if _, err := NewVaultProvider(VaultConfig{Token: "t"}); err == nil {
		t.Error("expected error without address")
	}
	if _, err := NewVaultProvider(VaultConfig{Address: "http://localhost:8200"}); err == nil {
		t.Error("expected error without token")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "sealed", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	p, _ := NewVaultProvider(VaultConfig{Address: srv.URL, Token: "t"})
	if _, err := p.Get(context.Background(), "hrrag#api_key"); err == nil {
		t.Fatal("expected error for 503")
	}
}
