package statecache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tomvdbrandt/canopy/pkg/model"
)

func openTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "state.db"), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGetRoundTrip(t *testing.T) {
	c := openTestCache(t)

	if err := c.Put("k", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get("k")
	if err != nil || !ok {
		t.Fatalf("Get = %v, ok=%v", err, ok)
	}
	if string(got) != "v1" {
		t.Errorf("value = %q, want v1", got)
	}

	// Upsert replaces.
	if err := c.Put("k", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	got, _, _ = c.Get("k")
	if string(got) != "v2" {
		t.Errorf("value after upsert = %q, want v2", got)
	}
}

func TestGetMiss(t *testing.T) {
	c := openTestCache(t)
	if _, ok, err := c.Get("absent"); err != nil || ok {
		t.Errorf("miss: ok=%v err=%v", ok, err)
	}
}

func TestEntryExpires(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	clock := func() time.Time { return now }
	c := openTestCache(t, WithTTL(5*time.Minute), WithClock(clock))

	if err := c.Put("k", []byte("v")); err != nil {
		t.Fatal(err)
	}

	now = now.Add(4 * time.Minute)
	if _, ok, _ := c.Get("k"); !ok {
		t.Fatal("entry expired too early")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.Get("k"); ok {
		t.Fatal("entry survived past its TTL")
	}

	// Expired rows are lazily deleted: a put-back works and a re-read at
	// the old time would be fresh again.
	if err := c.Put("k", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get("k"); !ok {
		t.Error("re-put entry must be fresh")
	}
}

func TestDeleteMissingKeyIsNoError(t *testing.T) {
	c := openTestCache(t)
	if err := c.Delete("absent"); err != nil {
		t.Errorf("deleting a missing key: %v", err)
	}
}

func TestTreeRoundTrip(t *testing.T) {
	c := openTestCache(t)
	nodes := []model.Node{
		{ID: "root", Name: "Root", Status: model.StatusNew, Children: []string{"a"}},
		{ID: "a", Name: "Alpha", Status: model.StatusCompleted},
	}

	if err := c.SaveTree(nodes); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.LoadTree()
	if err != nil || !ok {
		t.Fatalf("LoadTree: ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[0].ID != "root" || got[1].Status != model.StatusCompleted {
		t.Errorf("loaded %+v", got)
	}
}

func TestInvalidateTree(t *testing.T) {
	c := openTestCache(t)
	if err := c.SaveTree([]model.Node{{ID: "root"}}); err != nil {
		t.Fatal(err)
	}
	if err := c.InvalidateTree(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.LoadTree(); ok {
		t.Error("tree still cached after invalidation")
	}
}

func TestCorruptTreeEntryIsMiss(t *testing.T) {
	c := openTestCache(t)
	if err := c.Put("tree", []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	nodes, ok, err := c.LoadTree()
	if err != nil {
		t.Fatalf("corrupt entry must be a miss, not an error: %v", err)
	}
	if ok || nodes != nil {
		t.Error("corrupt entry reported as a hit")
	}
	// And it must have been purged.
	if _, present, _ := c.Get("tree"); present {
		t.Error("corrupt entry not deleted")
	}
}

func TestViewportRoundTrip(t *testing.T) {
	c := openTestCache(t)
	want := Viewport{Zoom: 1.5, OffsetX: 10, OffsetY: 42}

	if err := c.SaveViewport(want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.LoadViewport()
	if err != nil || !ok {
		t.Fatalf("LoadViewport: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Errorf("viewport = %+v, want %+v", got, want)
	}
}
