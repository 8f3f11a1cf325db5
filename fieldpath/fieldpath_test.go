package fieldpath

import (
	"errors"
	"testing"
	"time"
)

type listenerConfig struct {
	Addr    string        `default:"127.0.0.1:8080"`
	Timeout time.Duration `default:"30s"`
}

type serviceConfig struct {
	Name      string `default:"svckit"`
	Replicas  int    `default:"3"`
	Debug     bool
	Ratio     float64  `default:"0.5"`
	Tags      []string `default:"core infra"`
	Listener  listenerConfig
	Fallback  *listenerConfig
	Labels    map[string]string
	unexpored string
}

func TestGet(t *testing.T) {
	cfg := &serviceConfig{
		Name:     "api",
		Listener: listenerConfig{Addr: ":9090"},
		Labels:   map[string]string{"tier": "backend"},
	}
	got, err := Get(cfg, "Name")
	if err != nil || got != "api" {
		t.Fatalf("Get(Name) = %v, %v", got, err)
	}
	got, err = Get(cfg, "Listener.Addr")
	if err != nil || got != ":9090" {
		t.Fatalf("Get(Listener.Addr) = %v, %v", got, err)
	}
	got, err = Get(cfg, "Labels.tier")
	if err != nil || got != "backend" {
		t.Fatalf("Get(Labels.tier) = %v, %v", got, err)
	}
	if _, err := Get(cfg, "Nope"); !errors.Is(err, ErrNoField) {
		t.Fatalf("Get(Nope): err = %v, want ErrNoField", err)
	}
	if _, err := Get(cfg, "Fallback.Addr"); !errors.Is(err, ErrNoField) {
		t.Fatalf("Get through nil pointer: err = %v, want ErrNoField", err)
	}
	if _, err := Get(cfg, "Labels.missing"); !errors.Is(err, ErrNoField) {
		t.Fatalf("Get missing map key: err = %v, want ErrNoField", err)
	}
}

func TestSetCoercesValues(t *testing.T) {
	cfg := &serviceConfig{}
	if err := Set(cfg, "Name", "worker"); err != nil {
		t.Fatalf("set string: %v", err)
	}
	if err := Set(cfg, "Replicas", "7"); err != nil {
		t.Fatalf("set int from string: %v", err)
	}
	if err := Set(cfg, "Debug", "true"); err != nil {
		t.Fatalf("set bool from string: %v", err)
	}
	if err := Set(cfg, "Ratio", "0.25"); err != nil {
		t.Fatalf("set float from string: %v", err)
	}
	if err := Set(cfg, "Listener.Timeout", "90s"); err != nil {
		t.Fatalf("set duration from string: %v", err)
	}
	if cfg.Name != "worker" || cfg.Replicas != 7 || !cfg.Debug || cfg.Ratio != 0.25 {
		t.Fatalf("unexpected config after sets: %+v", cfg)
	}
	if cfg.Listener.Timeout != 90*time.Second {
		t.Fatalf("timeout = %v, want 90s", cfg.Listener.Timeout)
	}
}

func TestSetAllocatesNilPointers(t *testing.T) {
	cfg := &serviceConfig{}
	if err := Set(cfg, "Fallback.Addr", ":8081"); err != nil {
		t.Fatalf("set through nil pointer: %v", err)
	}
	if cfg.Fallback == nil || cfg.Fallback.Addr != ":8081" {
		t.Fatalf("fallback = %+v", cfg.Fallback)
	}
}

func TestSetRejectsBadInput(t *testing.T) {
	cfg := &serviceConfig{}
	if err := Set(cfg, "Replicas", "not-a-number"); err == nil {
		t.Fatalf("expected coercion error")
	}
	if err := Set(serviceConfig{}, "Name", "x"); err == nil {
		t.Fatalf("expected error for non-pointer target")
	}
	if err := Set(cfg, "Nope", "x"); !errors.Is(err, ErrNoField) {
		t.Fatalf("err = %v, want ErrNoField", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &serviceConfig{}
	if err := ApplyDefaults(cfg); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	if cfg.Name != "svckit" || cfg.Replicas != 3 || cfg.Ratio != 0.5 {
		t.Fatalf("top-level defaults not applied: %+v", cfg)
	}
	if len(cfg.Tags) != 2 || cfg.Tags[0] != "core" || cfg.Tags[1] != "infra" {
		t.Fatalf("slice default = %v", cfg.Tags)
	}
	if cfg.Listener.Addr != "127.0.0.1:8080" || cfg.Listener.Timeout != 30*time.Second {
		t.Fatalf("nested defaults not applied: %+v", cfg.Listener)
	}
	// Untagged fields keep their zero value.
	if cfg.Debug {
		t.Fatalf("untagged field changed")
	}
	// Nil struct pointers with tagged fields below get allocated.
	if cfg.Fallback == nil || cfg.Fallback.Addr != "127.0.0.1:8080" {
		t.Fatalf("pointer defaults not applied: %+v", cfg.Fallback)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &serviceConfig{Name: "explicit", Replicas: 1}
	cfg.Listener.Timeout = time.Minute
	if err := ApplyDefaults(cfg); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	if cfg.Name != "explicit" || cfg.Replicas != 1 {
		t.Fatalf("explicit values overwritten: %+v", cfg)
	}
	if cfg.Listener.Timeout != time.Minute {
		t.Fatalf("explicit nested value overwritten: %v", cfg.Listener.Timeout)
	}
}

func TestPaths(t *testing.T) {
	paths := Paths(&serviceConfig{})
	want := map[string]bool{
		"Name":             true,
		"Listener.Addr":    true,
		"Listener.Timeout": true,
		"Fallback.Addr":    true,
		"Labels":           true,
	}
	got := make(map[string]bool, len(paths))
	for _, p := range paths {
		got[p] = true
	}
	for p := range want {
		if !got[p] {
			t.Fatalf("path %q missing from %v", p, paths)
		}
	}
	for _, p := range paths {
		if p == "unexpored" {
			t.Fatalf("unexported field enumerated")
		}
	}
}

func TestPathsCachedCopiesAreIndependent(t *testing.T) {
	first := Paths(&serviceConfig{})
	if len(first) == 0 {
		t.Fatalf("no paths enumerated")
	}
	first[0] = "mutated"
	second := Paths(&serviceConfig{})
	if second[0] == "mutated" {
		t.Fatalf("mutating a returned slice leaked into the cache")
	}
	if len(first) != len(second) {
		t.Fatalf("repeated calls disagree: %d vs %d paths", len(first), len(second))
	}
	for i := 1; i < len(first); i++ {
		if first[i] != second[i] {
			t.Fatalf("path %d = %q, want %q", i, second[i], first[i])
		}
	}
}
