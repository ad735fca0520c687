package prepcache

import "testing"

func TestCapacityEvictsAllPriorEntries(t *testing.T) {
	var evicted []string
	c := New(2, func(_ string, _ int, name string) {
		evicted = append(evicted, name)
	})

	c.Insert("qmark", 100, Key{SQL: "a"}, &Entry{Name: "s1"})
	c.Insert("qmark", 100, Key{SQL: "b"}, &Entry{Name: "s2"})
	if got := c.Size("qmark", 100); got != 2 {
		t.Fatalf("expected 2 entries before overflow, got %d", got)
	}

	c.Insert("qmark", 100, Key{SQL: "c"}, &Entry{Name: "s3"})
	if got := c.Size("qmark", 100); got != 1 {
		t.Fatalf("expected exactly 1 entry after overflow eviction, got %d", got)
	}
	if len(evicted) != 2 {
		t.Fatalf("expected the 2 prior entries evicted, got %d", len(evicted))
	}
}

func TestInvalidateAllClearsEveryShard(t *testing.T) {
	c := New(10, nil)
	c.Insert("qmark", 1, Key{SQL: "a"}, &Entry{Name: "s1"})
	c.Insert("named", 2, Key{SQL: "b"}, &Entry{Name: "s2"})

	c.InvalidateAll()

	if got := c.Size("qmark", 1); got != 0 {
		t.Fatalf("expected qmark shard cleared, got %d entries", got)
	}
	if got := c.Size("named", 2); got != 0 {
		t.Fatalf("expected named shard cleared, got %d entries", got)
	}
}

func TestNextStatementNameIsGloballyMonotonicPerPid(t *testing.T) {
	c := New(10, nil)
	n1 := c.NextStatementName(7)
	n2 := c.NextStatementName(7)
	if n1 == n2 {
		t.Fatalf("expected distinct statement names, got %q twice", n1)
	}
}
