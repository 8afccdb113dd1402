package connection_test

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/xraph/evolution/connection"
)

func newRegistry() *connection.Registry {
	return connection.NewRegistry(map[string]connection.Config{
		"default": {ServerURL: "https://api.test/", APIKey: "k"},
		"backup":  {ServerURL: "https://backup.test", APIKey: "b"},
		"broken":  {ServerURL: "not a url", APIKey: "x"},
		"keyless": {ServerURL: "https://keyless.test"},
	}, nil)
}

func TestResolveDeterministic(t *testing.T) {
	r := newRegistry()

	first, err := r.Resolve("default")
	if err != nil {
		t.Fatal(err)
	}
	if first.ServerURL != "https://api.test" {
		t.Fatalf("expected trailing slash stripped, got %q", first.ServerURL)
	}
	if first.Name != "default" {
		t.Fatalf("expected name default, got %q", first.Name)
	}

	for i := 0; i < 5; i++ {
		again, err := r.Resolve("default")
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("resolve %d: got %+v, want %+v", i, again, first)
		}
	}
}

func TestResolveNotFound(t *testing.T) {
	r := newRegistry()

	for _, name := range []string{"missing", "DEFAULT", "default "} {
		_, err := r.Resolve(name)
		if !errors.Is(err, connection.ErrNotFound) {
			t.Fatalf("Resolve(%q): expected ErrNotFound, got %v", name, err)
		}
		var nf *connection.NotFoundError
		if !errors.As(err, &nf) || nf.Name != name {
			t.Fatalf("Resolve(%q): expected NotFoundError naming it, got %v", name, err)
		}
	}
}

func TestResolveInvalid(t *testing.T) {
	r := newRegistry()

	tests := []struct {
		name  string
		field string
	}{
		{"broken", "server_url"},
		{"keyless", "api_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.name)
			if !errors.Is(err, connection.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			var ic *connection.InvalidConfigError
			if !errors.As(err, &ic) || ic.Field != tt.field {
				t.Fatalf("expected field %q, got %v", tt.field, err)
			}
		})
	}
}

func TestSetActiveFailFast(t *testing.T) {
	r := newRegistry()

	if err := r.SetActive("missing"); !errors.Is(err, connection.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if r.Active() != connection.DefaultName {
		t.Fatalf("active changed on failure: %q", r.Active())
	}

	if err := r.SetActive("backup"); err != nil {
		t.Fatal(err)
	}
	cfg, err := r.ActiveConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != "https://backup.test" {
		t.Fatalf("expected backup server, got %q", cfg.ServerURL)
	}
	empty, err := r.Resolve("")
	if err != nil || empty != cfg {
		t.Fatalf("empty name should resolve the active connection, got %+v, %v", empty, err)
	}
}

func TestAddRuntimeOverridesStatic(t *testing.T) {
	r := newRegistry()

	if _, err := r.Resolve("default"); err != nil {
		t.Fatal(err)
	}
	if err := r.AddRuntime("default", connection.Config{ServerURL: "https://runtime.test//", APIKey: "rk"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := r.Resolve("default")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != "https://runtime.test" || cfg.APIKey != "rk" {
		t.Fatalf("expected runtime override, got %+v", cfg)
	}

	r.Remove("default")
	cfg, err = r.Resolve("default")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != "https://api.test" {
		t.Fatalf("expected static config after remove, got %+v", cfg)
	}
}

func TestAddRuntimeValidates(t *testing.T) {
	r := newRegistry()

	err := r.AddRuntime("tenant", connection.Config{ServerURL: "ftp://files.test", APIKey: "k"})
	if !errors.Is(err, connection.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := r.Resolve("tenant"); !errors.Is(err, connection.ErrNotFound) {
		t.Fatalf("invalid runtime connection must not be stored, got %v", err)
	}
}

func TestRemoveResetsActive(t *testing.T) {
	r := newRegistry()

	if err := r.AddRuntime("tenant", connection.Config{ServerURL: "https://tenant.test", APIKey: "t"}); err != nil {
		t.Fatal(err)
	}
	if err := r.SetActive("tenant"); err != nil {
		t.Fatal(err)
	}

	r.Remove("tenant")

	if r.Active() != connection.DefaultName {
		t.Fatalf("expected active reset to default, got %q", r.Active())
	}
	if _, err := r.Resolve("tenant"); !errors.Is(err, connection.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
}

func TestLegacyDefault(t *testing.T) {
	r := connection.NewRegistry(nil, nil).WithLegacy("https://legacy.test/", "lk")

	cfg, err := r.Resolve(connection.DefaultName)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != "https://legacy.test" || cfg.APIKey != "lk" {
		t.Fatalf("unexpected legacy config: %+v", cfg)
	}

	explicit := connection.NewRegistry(map[string]connection.Config{
		"default": {ServerURL: "https://named.test", APIKey: "n"},
	}, nil).WithLegacy("https://legacy.test", "lk")
	cfg, err = explicit.Resolve("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != "https://named.test" {
		t.Fatalf("named default must win over legacy fields, got %+v", cfg)
	}
}

func TestNames(t *testing.T) {
	r := newRegistry()
	if err := r.AddRuntime("alpha", connection.Config{ServerURL: "https://alpha.test", APIKey: "a"}); err != nil {
		t.Fatal(err)
	}

	got := r.Names()
	want := []string{"alpha", "backup", "broken", "default", "keyless"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
}

func TestConfigURL(t *testing.T) {
	cfg := connection.Config{ServerURL: "https://api.test"}
	if got := cfg.URL("/message/sendText/inst"); got != "https://api.test/message/sendText/inst" {
		t.Fatalf("URL() = %q", got)
	}
}

func TestResolveConcurrent(t *testing.T) {
	r := newRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve("backup"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
}
