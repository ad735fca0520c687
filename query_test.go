package cumulus

import (
	"testing"

	"github.com/cumulusdb/cumulus-go/pkg/cursor"
	"github.com/cumulusdb/cumulus-go/pkg/prepcache"
)

func newTestConnection() *Connection {
	return &Connection{
		cache:        prepcache.New(0, nil),
		rowCountTags: defaultRowCountTags(),
	}
}

func TestHandleCommandCompleteCountedVerb(t *testing.T) {
	c := newTestConnection()
	cur := cursor.New("qmark")

	c.handleCommandComplete(cur, "INSERT 0 3")

	if cur.RowCount != 3 {
		t.Fatalf("got RowCount %d, want 3", cur.RowCount)
	}
}

func TestHandleCommandCompleteSelectUsesVendorCount(t *testing.T) {
	c := newTestConnection()
	cur := cursor.New("qmark")
	cur.AppendRow([]interface{}{1})
	cur.AppendRow([]interface{}{2})

	c.handleCommandComplete(cur, "SELECT")

	if cur.RowCount != 2 {
		t.Fatalf("got RowCount %d, want 2 (vendor row count)", cur.RowCount)
	}
}

func TestHandleCommandCompleteUncountedVerbLeavesSentinel(t *testing.T) {
	c := newTestConnection()
	for _, tag := range []string{"BEGIN", "SET", "COMMIT"} {
		cur := cursor.New("qmark")
		c.handleCommandComplete(cur, tag)
		if cur.RowCount != -1 {
			t.Fatalf("tag %q: got RowCount %d, want -1 sentinel", tag, cur.RowCount)
		}
	}
}

func TestHandleCommandCompleteNarrowedTagsDropFetchAndCopy(t *testing.T) {
	c := newTestConnection()
	c.rowCountTags = narrowRowCountTags()

	cur := cursor.New("qmark")
	c.handleCommandComplete(cur, "FETCH 5")
	if cur.RowCount != -1 {
		t.Fatalf("got RowCount %d, want -1 sentinel for FETCH under narrowed tag set", cur.RowCount)
	}

	cur = cursor.New("qmark")
	c.handleCommandComplete(cur, "DELETE 4")
	if cur.RowCount != 4 {
		t.Fatalf("got RowCount %d, want 4 for DELETE under narrowed tag set", cur.RowCount)
	}
}

func TestHandleCommandCompleteAlterInvalidatesCache(t *testing.T) {
	c := newTestConnection()
	key := prepcache.Key{SQL: "select 1", Signature: "sig"}
	c.cache.Insert("qmark", 1, key, &prepcache.Entry{Name: "s1"})

	cur := cursor.New("qmark")
	c.handleCommandComplete(cur, "ALTER TABLE")

	if _, ok := c.cache.Lookup("qmark", 1, key); ok {
		t.Fatalf("expected cache entry evicted after ALTER")
	}
}

func TestDecodeDataRowNullField(t *testing.T) {
	payload := []byte{0, 1, 0xff, 0xff, 0xff, 0xff}
	row, err := decodeDataRow(payload, nil, nil)
	if err != nil {
		t.Fatalf("decodeDataRow: %v", err)
	}
	if len(row) != 1 || row[0] != nil {
		t.Fatalf("got %v, want single nil field", row)
	}
}

func TestVersionLessNarrowsRowCountTags(t *testing.T) {
	cases := []struct {
		version string
		want    bool
	}{
		{"8.1.0", true},
		{"8.2.0", false},
		{"9.0.0", false},
		{"8.2.0 (Raven)", false},
	}
	for _, c := range cases {
		if got := versionLess(c.version, "8.2.0"); got != c.want {
			t.Fatalf("versionLess(%q, 8.2.0): got %v, want %v", c.version, got, c.want)
		}
	}
}
