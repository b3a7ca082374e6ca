// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"testing"

	"github.com/gogpu/variant/abi"
)

type stubCompiler struct{ closed bool }

func (c *stubCompiler) Compile(req *Request) (*Binary, error) {
	if c.closed {
		return nil, ErrClosed
	}
	return &Binary{Code: []byte(req.Label), Entry: req.Label}, nil
}

func (c *stubCompiler) Close() { c.closed = true }

type stubBackend struct{ name string }

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) NewCompiler(abi.Chip) (Compiler, error) { return &stubCompiler{}, nil }

// =============================================================================
// Registry
// =============================================================================

func TestRegistryRegisterAndGet(t *testing.T) {
	Register("test-a", func() Backend { return &stubBackend{name: "test-a"} })
	defer Unregister("test-a")

	if !IsRegistered("test-a") {
		t.Error("test-a should be registered")
	}
	b := Get("test-a")
	if b == nil {
		t.Fatal("Get(test-a) returned nil")
	}
	if b.Name() != "test-a" {
		t.Errorf("Get(test-a).Name() = %q, want %q", b.Name(), "test-a")
	}
}

func TestRegistryGetUnregistered(t *testing.T) {
	if b := Get("nonexistent"); b != nil {
		t.Error("Get(nonexistent) should return nil")
	}
}

func TestRegistryAvailableSorted(t *testing.T) {
	Register("test-z", func() Backend { return &stubBackend{name: "test-z"} })
	Register("test-b", func() Backend { return &stubBackend{name: "test-b"} })
	defer Unregister("test-z")
	defer Unregister("test-b")

	names := Available()
	ib, iz := -1, -1
	for i, n := range names {
		switch n {
		case "test-b":
			ib = i
		case "test-z":
			iz = i
		}
	}
	if ib < 0 || iz < 0 || ib > iz {
		t.Errorf("Available() = %v, want test-b before test-z", names)
	}
}

func TestRegistryDefaultPrefersPriority(t *testing.T) {
	Register("aaa", func() Backend { return &stubBackend{name: "aaa"} })
	Register(BackendNative, func() Backend { return &stubBackend{name: BackendNative} })
	defer Unregister("aaa")
	defer Unregister(BackendNative)

	if b := Default(); b == nil || b.Name() != BackendNative {
		t.Errorf("Default() = %v, want %s", b, BackendNative)
	}
}

func TestRegistryDefaultFallback(t *testing.T) {
	Register("test-fallback", func() Backend { return &stubBackend{name: "test-fallback"} })
	defer Unregister("test-fallback")
	if IsRegistered(BackendNative) {
		t.Skip("native backend registered")
	}
	if b := Default(); b == nil {
		t.Error("Default() returned nil with a backend registered")
	}
}

func TestRegistryMustDefaultPanics(t *testing.T) {
	registryMu.Lock()
	saved := backends
	backends = make(map[string]Factory)
	registryMu.Unlock()
	defer func() {
		registryMu.Lock()
		backends = saved
		registryMu.Unlock()
	}()

	defer func() {
		if recover() == nil {
			t.Error("MustDefault() did not panic with no backends")
		}
	}()
	MustDefault()
}

func TestRegistryUnregister(t *testing.T) {
	Register("test-backend", func() Backend { return &stubBackend{} })
	if !IsRegistered("test-backend") {
		t.Error("test-backend should be registered")
	}
	Unregister("test-backend")
	if IsRegistered("test-backend") {
		t.Error("test-backend should be unregistered")
	}
}

func TestCompilerClosed(t *testing.T) {
	c, _ := (&stubBackend{}).NewCompiler(abi.Navi10())
	c.Close()
	if _, err := c.Compile(&Request{Label: "x"}); err != ErrClosed {
		t.Errorf("Compile after Close = %v, want ErrClosed", err)
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		k    Kind
		want string
	}{
		{KindMain, "main"},
		{KindCull, "cull"},
		{KindPart, "part"},
		{Kind(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.k.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.k, got, tt.want)
		}
	}
}
