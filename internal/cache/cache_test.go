package cache

import (
	"strconv"
	"testing"
)

func TestFindMiss(t *testing.T) {
	c := New(Config{PageMaxEntries: 4})
	if _, ok := c.Find(ClassPage, "p1", "/data"); ok {
		t.Error("expected miss on empty cache")
	}
	stats := c.Stats(ClassPage)
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
}

func TestAddAndFind(t *testing.T) {
	c := New(Config{PageMaxEntries: 4})
	c.Add(ClassPage, "p1", "/data", "payload", nil, nil)

	v, ok := c.Find(ClassPage, "p1", "/data")
	if !ok {
		t.Fatal("expected hit after Add")
	}
	if v.(string) != "payload" {
		t.Errorf("value = %v, want payload", v)
	}
}

func TestEvictionRespectsCapacity(t *testing.T) {
	c := New(Config{PageMaxEntries: 2})
	var freed []string

	free := func(name string) FreeFunc {
		return func() error {
			freed = append(freed, name)
			return nil
		}
	}

	c.Add(ClassPage, "p1", "/data", "v1", free("p1"), nil)
	c.Add(ClassPage, "p2", "/data", "v2", free("p2"), nil)
	c.Add(ClassPage, "p3", "/data", "v3", free("p3"), nil)

	if len(freed) != 1 || freed[0] != "p1" {
		t.Errorf("expected p1 evicted first, got %v", freed)
	}
	if _, ok := c.Find(ClassPage, "p1", "/data"); ok {
		t.Error("p1 should have been evicted")
	}
	if _, ok := c.Find(ClassPage, "p3", "/data"); !ok {
		t.Error("p3 should still be cached")
	}
}

func TestPinPreventsEviction(t *testing.T) {
	c := New(Config{PageMaxEntries: 2})
	var freed []string

	free := func(name string) FreeFunc {
		return func() error {
			freed = append(freed, name)
			return nil
		}
	}

	c.Add(ClassPage, "p1", "/data", "v1", free("p1"), nil)
	c.Pin(ClassPage, "p1", "/data")
	c.Add(ClassPage, "p2", "/data", "v2", free("p2"), nil)
	c.Add(ClassPage, "p3", "/data", "v3", free("p3"), nil)

	for _, name := range freed {
		if name == "p1" {
			t.Error("pinned entry p1 should not have been evicted")
		}
	}
	if _, ok := c.Find(ClassPage, "p1", "/data"); !ok {
		t.Error("pinned p1 should still be cached")
	}
}

func TestFlushInvokesSaveAndFree(t *testing.T) {
	c := New(Config{PageMaxEntries: 4})
	saved := false
	freed := false

	c.Add(ClassPage, "p1", "/data", "v1",
		func() error { freed = true; return nil },
		func() error { saved = true; return nil },
	)

	if err := c.Flush(ClassPage, "p1", "/data"); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if !saved {
		t.Error("expected save callback to run on Flush")
	}
	if !freed {
		t.Error("expected free callback to run on Flush")
	}
	if _, ok := c.Find(ClassPage, "p1", "/data"); ok {
		t.Error("entry should be gone after Flush")
	}
}

func TestFlushAllDrainsClass(t *testing.T) {
	c := New(Config{DirectoryMaxEntries: 8})
	var saves int

	for _, name := range []string{"d1", "d2", "d3"} {
		c.Add(ClassDirectory, name, "/data", name,
			nil,
			func() error { saves++; return nil },
		)
	}

	if err := c.FlushAll(ClassDirectory); err != nil {
		t.Fatalf("FlushAll returned error: %v", err)
	}
	if saves != 3 {
		t.Errorf("saves = %d, want 3", saves)
	}
	if c.Stats(ClassDirectory).Entries != 0 {
		t.Error("expected class to be empty after FlushAll")
	}
}

func TestUnboundedClassNeverEvicts(t *testing.T) {
	c := New(Config{})
	for i := 0; i < 100; i++ {
		c.Add(ClassTable, strconv.Itoa(i), "/data", i, nil, nil)
	}
	if c.Stats(ClassTable).Entries != 100 {
		t.Errorf("entries = %d, want 100", c.Stats(ClassTable).Entries)
	}
}

type recordedEvent struct {
	kind  string
	class Class
}

type fakeRecorder struct {
	events []recordedEvent
}

func (f *fakeRecorder) RecordCacheHit(class Class) {
	f.events = append(f.events, recordedEvent{kind: "hit", class: class})
}

func (f *fakeRecorder) RecordCacheMiss(class Class) {
	f.events = append(f.events, recordedEvent{kind: "miss", class: class})
}

func TestSetRecorderReportsHitsAndMisses(t *testing.T) {
	c := New(Config{PageMaxEntries: 4})
	rec := &fakeRecorder{}
	c.SetRecorder(rec)

	c.Find(ClassPage, "p1", "/data")
	c.Add(ClassPage, "p1", "/data", "v1", nil, nil)
	c.Find(ClassPage, "p1", "/data")

	if len(rec.events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(rec.events))
	}
	if rec.events[0] != (recordedEvent{kind: "miss", class: ClassPage}) {
		t.Errorf("events[0] = %+v, want miss/page", rec.events[0])
	}
	if rec.events[1] != (recordedEvent{kind: "hit", class: ClassPage}) {
		t.Errorf("events[1] = %+v, want hit/page", rec.events[1])
	}
}

func TestHitRate(t *testing.T) {
	c := New(Config{PageMaxEntries: 4})
	c.Add(ClassPage, "p1", "/data", "v1", nil, nil)

	c.Find(ClassPage, "p1", "/data")
	c.Find(ClassPage, "p1", "/data")
	c.Find(ClassPage, "missing", "/data")

	stats := c.Stats(ClassPage)
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("hits=%d misses=%d, want 2/1", stats.Hits, stats.Misses)
	}
	if stats.HitRate < 0.66 || stats.HitRate > 0.67 {
		t.Errorf("HitRate = %f, want ~0.667", stats.HitRate)
	}
}
