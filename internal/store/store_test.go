package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	if _, err := kv.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing key err = %v, want ErrNotFound", err)
	}
	if err := kv.Set(ctx, "heading_offset", "12.5"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Set(ctx, "heading_offset", "33"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, err := kv.Get(ctx, "heading_offset")
	if err != nil || v != "33" {
		t.Fatalf("get = %q, %v", v, err)
	}
}

func TestMemory(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestFileSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "dualtrack.yaml")
	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exerciseKV(t, f)

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, err := reopened.Get(context.Background(), "heading_offset")
	if err != nil || v != "33" {
		t.Fatalf("after reopen = %q, %v", v, err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("- a\n- b\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), RedisConfig{Addr: mr.Addr(), Prefix: "dualtrack:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer r.Close()

	exerciseKV(t, r)

	if got, _ := mr.Get("dualtrack:heading_offset"); got != "33" {
		t.Fatalf("prefixed key = %q", got)
	}
}

func TestRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := NewRedis(context.Background(), RedisConfig{Addr: addr}); err == nil {
		t.Fatal("expected ping failure")
	}
}
