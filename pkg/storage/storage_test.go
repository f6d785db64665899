package storage

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "kv.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetMissingKeysAreEmpty(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := db.Set(ctx, "a", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := db.Get(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := map[string]string{"a": "1", "b": ""}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Get = %v, want %v", got, want)
	}
}

func TestSetOverwrites(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	db.Set(ctx, "k", "old")
	db.Set(ctx, "k", "new")
	got, _ := db.Get(ctx, []string{"k"})
	if got["k"] != "new" {
		t.Fatalf("k = %q", got["k"])
	}
}

func TestSetManyDumpAndClear(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := db.SetMany(ctx, map[string]string{"p_a": "1", "p_b": "2", "q_c": "3"}); err != nil {
		t.Fatalf("SetMany: %v", err)
	}
	recs, err := db.Dump(ctx, "p_")
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if len(recs) != 2 || recs[0].Key != "p_a" || recs[1].Value != "2" {
		t.Fatalf("Dump = %+v", recs)
	}
	if recs[0].UpdatedAt.IsZero() {
		t.Fatalf("UpdatedAt not parsed")
	}

	n, err := db.Clear(ctx, "p_")
	if err != nil || n != 2 {
		t.Fatalf("Clear = %d, %v", n, err)
	}
	if err := db.Delete(ctx, "q_c"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	recs, _ = db.Dump(ctx, "")
	if len(recs) != 0 {
		t.Fatalf("store not empty: %+v", recs)
	}
}

func TestGetNoKeys(t *testing.T) {
	db := openTestDB(t)
	got, err := db.Get(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("Get(nil) = %v, %v", got, err)
	}
}
