// Package cursor defines the contract the connection engine populates
// on every execute(): buffered rows, row counts, an optional COPY
// stream, and a reference to the statement that produced them. Cursor
// result-set iteration itself (DB-API conformance, row buffering
// strategy) is a caller concern outside the core.
package cursor

import (
	"io"

	"github.com/cumulusdb/cumulus-go/pkg/prepcache"
)

// Cursor is the state the extended-query driver writes into on every
// execute(), per §6.
type Cursor struct {
	Paramstyle string

	// CachedRows accumulates decoded DataRow values in arrival order;
	// each entry is one row's decoded field values.
	CachedRows [][]interface{}

	// RowCount mirrors the server's own accounting (-1 when the server
	// does not report a count for the executed command, e.g. BEGIN or
	// SET). For SELECT it is set to VendorRowCount.
	RowCount int64

	// VendorRowCount is the vendor-extended SELECT row count, derived
	// from len(CachedRows) rather than a CommandComplete tag.
	VendorRowCount int64

	// Stream is the caller-supplied source (CopyInResponse) or sink
	// (CopyOutResponse) for COPY. A COPY that arrives without one set
	// is a fatal interface error.
	Stream io.ReadWriter

	// Statement is the prepared-statement cache entry bound to this
	// execution, populated once the Describe round trip (or a cache
	// hit) resolves it.
	Statement *prepcache.Entry
}

// New returns a Cursor ready for one execute() call.
func New(paramstyle string) *Cursor {
	return &Cursor{Paramstyle: paramstyle, RowCount: -1}
}

// Reset clears buffered rows and counters between executions while
// keeping the cursor's paramstyle and stream binding.
func (c *Cursor) Reset() {
	c.CachedRows = nil
	c.RowCount = -1
	c.VendorRowCount = 0
	c.Statement = nil
}

// AppendRow buffers one decoded row and advances the vendor row count.
func (c *Cursor) AppendRow(row []interface{}) {
	c.CachedRows = append(c.CachedRows, row)
	c.VendorRowCount++
}
