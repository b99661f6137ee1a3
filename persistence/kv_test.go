package persistence

import "testing"

func TestMemKVPutGetRoundTrip(t *testing.T) {
	kv := NewMemKV()
	if err := kv.Put("order:1:1", []byte("hello")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok, err := kv.Get("order:1:1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(v) != "hello" {
		t.Fatalf("got %q", v)
	}
}

func TestMemKVGetMissingKey(t *testing.T) {
	kv := NewMemKV()
	_, ok, err := kv.Get("missing")
	if err != nil || ok {
		t.Fatalf("expected ok=false, got ok=%v err=%v", ok, err)
	}
}

func TestMemKVIterFiltersByPrefixAndSorts(t *testing.T) {
	kv := NewMemKV()
	kv.Put("fill:1:00000000000000000002", []byte("b"))
	kv.Put("fill:1:00000000000000000001", []byte("a"))
	kv.Put("order:1:1", []byte("c"))

	pairs, err := kv.Iter("fill:1:")
	if err != nil {
		t.Fatalf("iter: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	if pairs[0].Key != "fill:1:00000000000000000001" || pairs[1].Key != "fill:1:00000000000000000002" {
		t.Fatalf("unexpected order: %+v", pairs)
	}
}

func TestMemKVDelete(t *testing.T) {
	kv := NewMemKV()
	kv.Put("k", []byte("v"))
	if err := kv.Delete("k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, ok, _ := kv.Get("k")
	if ok {
		t.Fatalf("expected key gone after delete")
	}
}

func TestMemKVPutCopiesValueDefensively(t *testing.T) {
	kv := NewMemKV()
	buf := []byte("original")
	kv.Put("k", buf)
	buf[0] = 'X'
	v, _, _ := kv.Get("k")
	if string(v) != "original" {
		t.Fatalf("mutation of caller's slice leaked into store: %q", v)
	}
}

func TestCopyIntoMergesShadowIntoLive(t *testing.T) {
	shadow := NewMemKV()
	shadow.Put("a", []byte("1"))
	shadow.Put("b", []byte("2"))

	live := NewMemKV()
	live.Put("a", []byte("stale"))

	if err := CopyInto(shadow, live); err != nil {
		t.Fatalf("copy into: %v", err)
	}

	a, _, _ := live.Get("a")
	b, _, _ := live.Get("b")
	if string(a) != "1" || string(b) != "2" {
		t.Fatalf("unexpected merge result a=%q b=%q", a, b)
	}
}

func TestKeyLayoutHelpers(t *testing.T) {
	if OrderKey(1, 42) != "order:1:42" {
		t.Fatalf("unexpected order key: %s", OrderKey(1, 42))
	}
	if FillKey(1, 42) != "fill:1:00000000000000000042" {
		t.Fatalf("unexpected fill key: %s", FillKey(1, 42))
	}
	if SnapshotKey(1, 7) != "snapshot:1:00000000000000000007" {
		t.Fatalf("unexpected snapshot key: %s", SnapshotKey(1, 7))
	}
	if OrderPrefix(1) != "order:1:" {
		t.Fatalf("unexpected order prefix: %s", OrderPrefix(1))
	}
}
