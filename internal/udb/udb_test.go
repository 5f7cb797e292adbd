package udb

import (
	"fmt"
	"path/filepath"
	"sort"
	"testing"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.udb")
	db, err := Create(path, 1<<20)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGetRoundTrip(t *testing.T) {
	db := openTest(t)
	if err := db.Put([]byte("example.com"), []byte("apex")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, ok, err := db.Get([]byte("example.com"))
	if err != nil || !ok {
		t.Fatalf("Get: %v ok=%v", err, ok)
	}
	if string(v) != "apex" {
		t.Errorf("expected %q, got %q", "apex", v)
	}
}

func TestGetMissingKeyNotFound(t *testing.T) {
	db := openTest(t)
	_, ok, err := db.Get([]byte("nope"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected key not to be found")
	}
}

func TestPutSplitsSharedPrefix(t *testing.T) {
	db := openTest(t)
	if err := db.Put([]byte("www.example.com"), []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := db.Put([]byte("www2.example.com"), []byte("b")); err != nil {
		t.Fatal(err)
	}
	v1, ok1, _ := db.Get([]byte("www.example.com"))
	v2, ok2, _ := db.Get([]byte("www2.example.com"))
	if !ok1 || string(v1) != "a" {
		t.Errorf("www.example.com: got %q ok=%v", v1, ok1)
	}
	if !ok2 || string(v2) != "b" {
		t.Errorf("www2.example.com: got %q ok=%v", v2, ok2)
	}
}

func TestPutOverwritesExistingValue(t *testing.T) {
	db := openTest(t)
	db.Put([]byte("k"), []byte("first"))
	db.Put([]byte("k"), []byte("second"))
	v, ok, _ := db.Get([]byte("k"))
	if !ok || string(v) != "second" {
		t.Errorf("expected second, got %q ok=%v", v, ok)
	}
}

func TestDeleteRemovesValue(t *testing.T) {
	db := openTest(t)
	db.Put([]byte("k"), []byte("v"))
	deleted, err := db.Delete([]byte("k"))
	if err != nil || !deleted {
		t.Fatalf("Delete: deleted=%v err=%v", deleted, err)
	}
	_, ok, _ := db.Get([]byte("k"))
	if ok {
		t.Fatal("expected key to be gone after delete")
	}
}

func TestWalkVisitsInLexicographicOrder(t *testing.T) {
	db := openTest(t)
	keys := []string{"b.example.com", "a.example.com", "c.example.com", "example.com"}
	for _, k := range keys {
		db.Put([]byte(k), []byte(k))
	}
	var seen []string
	err := db.Walk(func(key, value []byte) bool {
		seen = append(seen, string(key))
		return true
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := append([]string(nil), keys...)
	sort.Strings(want)
	if len(seen) != len(want) {
		t.Fatalf("expected %d keys, got %d: %v", len(want), len(seen), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("position %d: want %q, got %q", i, want[i], seen[i])
		}
	}
}

func TestWalkStopsEarly(t *testing.T) {
	db := openTest(t)
	db.Put([]byte("a"), []byte("1"))
	db.Put([]byte("b"), []byte("2"))
	db.Put([]byte("c"), []byte("3"))
	count := 0
	db.Walk(func(key, value []byte) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("expected Walk to stop after one visit, got %d", count)
	}
}

func TestOpenReopensExistingArena(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.udb")
	db, err := Create(path, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	db.Put([]byte("persisted"), []byte("value"))
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()
	v, ok, err := reopened.Get([]byte("persisted"))
	if err != nil || !ok || string(v) != "value" {
		t.Fatalf("Get after reopen: %q ok=%v err=%v", v, ok, err)
	}
}

func TestInvariantsHoldAfterManyInsertsAndDeletes(t *testing.T) {
	db := openTest(t)
	var keys []string
	for i := 0; i < 300; i++ {
		k := fmt.Sprintf("host%d.example.com", i)
		keys = append(keys, k)
		if err := db.Put([]byte(k), []byte(k)); err != nil {
			t.Fatalf("Put(%q): %v", k, err)
		}
	}
	if err := db.checkInvariants(); err != nil {
		t.Fatalf("after inserts: %v", err)
	}
	for i := 0; i < len(keys); i += 2 {
		if _, err := db.Delete([]byte(keys[i])); err != nil {
			t.Fatalf("Delete(%q): %v", keys[i], err)
		}
	}
	if err := db.checkInvariants(); err != nil {
		t.Fatalf("after deletes: %v", err)
	}
	for i := 1; i < len(keys); i += 2 {
		v, ok, err := db.Get([]byte(keys[i]))
		if err != nil || !ok || string(v) != keys[i] {
			t.Errorf("Get(%q) after partial delete: %q ok=%v err=%v", keys[i], v, ok, err)
		}
	}
}

func TestAddChildRejectsBeyondMaxChildren(t *testing.T) {
	db := openTest(t)
	root := db.root()
	for i := 0; i < maxChildren; i++ {
		leaf, err := db.newNode()
		if err != nil {
			t.Fatalf("newNode: %v", err)
		}
		if err := db.addChild(root, byte(i), leaf); err != nil {
			t.Fatalf("addChild %d: %v", i, err)
		}
	}
	extra, err := db.newNode()
	if err != nil {
		t.Fatalf("newNode: %v", err)
	}
	if err := db.addChild(root, byte(maxChildren%256), extra); err != ErrNodeFull {
		t.Fatalf("expected ErrNodeFull once a node has %d children, got %v", maxChildren, err)
	}
}

func TestDeletePrunesEmptyChainsAndMergesSingleChild(t *testing.T) {
	db := openTest(t)
	db.Put([]byte("a.example.com"), []byte("1"))
	db.Put([]byte("a.example.org"), []byte("2"))
	if _, err := db.Delete([]byte("a.example.com")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := db.checkInvariants(); err != nil {
		t.Fatalf("after delete: %v", err)
	}
	v, ok, err := db.Get([]byte("a.example.org"))
	if err != nil || !ok || string(v) != "2" {
		t.Fatalf("surviving key lost after merge: %q ok=%v err=%v", v, ok, err)
	}
	if _, ok, _ := db.Get([]byte("a.example.com")); ok {
		t.Fatal("deleted key still reachable")
	}
}

func TestFirstAndLast(t *testing.T) {
	db := openTest(t)
	keys := []string{"b.example.com", "a.example.com", "c.example.com", "example.com"}
	for _, k := range keys {
		db.Put([]byte(k), []byte(k))
	}
	k, v, ok, err := db.First()
	if err != nil || !ok || string(k) != "a.example.com" || string(v) != "a.example.com" {
		t.Errorf("First: key=%q ok=%v err=%v", k, ok, err)
	}
	k, v, ok, err = db.Last()
	if err != nil || !ok || string(k) != "example.com" || string(v) != "example.com" {
		t.Errorf("Last: key=%q ok=%v err=%v", k, ok, err)
	}
}

func TestNextAndPrevWalkInOrder(t *testing.T) {
	db := openTest(t)
	keys := []string{"a.example.com", "b.example.com", "c.example.com", "example.com"}
	for _, k := range keys {
		db.Put([]byte(k), []byte(k))
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var forward []string
	k, _, ok, err := db.First()
	if err != nil || !ok {
		t.Fatalf("First: ok=%v err=%v", ok, err)
	}
	for ok {
		forward = append(forward, string(k))
		k, _, ok, err = db.Next(k)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	if len(forward) != len(sorted) {
		t.Fatalf("Next chain visited %d keys, want %d: %v", len(forward), len(sorted), forward)
	}
	for i := range sorted {
		if forward[i] != sorted[i] {
			t.Errorf("position %d: want %q, got %q", i, sorted[i], forward[i])
		}
	}

	var backward []string
	k, _, ok, err = db.Last()
	if err != nil || !ok {
		t.Fatalf("Last: ok=%v err=%v", ok, err)
	}
	for ok {
		backward = append(backward, string(k))
		k, _, ok, err = db.Prev(k)
		if err != nil {
			t.Fatalf("Prev: %v", err)
		}
	}
	if len(backward) != len(sorted) {
		t.Fatalf("Prev chain visited %d keys, want %d: %v", len(backward), len(sorted), backward)
	}
	for i := range sorted {
		if backward[i] != sorted[len(sorted)-1-i] {
			t.Errorf("position %d: want %q, got %q", i, sorted[len(sorted)-1-i], backward[i])
		}
	}
}

func TestFindLessEqualReturnsPredecessorForMissingKey(t *testing.T) {
	db := openTest(t)
	db.Put([]byte("b.example.com"), []byte("b"))
	db.Put([]byte("d.example.com"), []byte("d"))

	k, v, ok, err := db.FindLessEqual([]byte("c.example.com"))
	if err != nil || !ok || string(k) != "b.example.com" || string(v) != "b" {
		t.Errorf("FindLessEqual(missing, between): key=%q ok=%v err=%v", k, ok, err)
	}

	k, v, ok, err = db.FindLessEqual([]byte("d.example.com"))
	if err != nil || !ok || string(k) != "d.example.com" || string(v) != "d" {
		t.Errorf("FindLessEqual(exact match): key=%q ok=%v err=%v", k, ok, err)
	}

	_, _, ok, err = db.FindLessEqual([]byte("a.example.com"))
	if err != nil || ok {
		t.Errorf("FindLessEqual(before everything): ok=%v err=%v, want not found", ok, err)
	}
}
