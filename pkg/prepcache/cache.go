// Package prepcache implements the driver's prepared-statement cache:
// a two-level map keyed first by paramstyle then by process id, holding
// one shard per (paramstyle, pid) that memoizes parsed statements by
// (query text, parameter type signature). Keying by pid exists only so
// a forked child does not reuse the parent's server-side statement
// names; a runtime without fork may key by connection identity instead
// with equivalent behavior.
package prepcache

import (
	"fmt"
	"sync"

	"github.com/cumulusdb/cumulus-go/pkg/codec"
)

// Key identifies a cache entry: the rewritten query text plus the
// parameter type signature (the ordered OIDs chosen by the type
// inspector).
type Key struct {
	SQL       string
	Signature string
}

// SignatureOf renders a parameter OID list into the string half of a
// Key.
func SignatureOf(oids []codec.OID) string {
	s := ""
	for i, oid := range oids {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d", oid)
	}
	return s
}

// RowField mirrors one RowDescription field bound at Describe time.
type RowField struct {
	Name       string
	TableOID   uint32
	ColumnAttr int16
	TypeOID    codec.OID
	TypeSize   int16
	TypeMod    int32
	Format     codec.FormatCode
}

// Entry is a cached prepared statement: its wire name, row description,
// parameter encoders/OIDs, precomputed Bind fragments, and the decoder
// chain bound at Describe time.
type Entry struct {
	Name           string
	RowDescription []RowField
	ParamOIDs      []codec.OID
	ParamFormats   []codec.FormatCode
	// Bind1 is portal="" + statement name + parameter format codes +
	// parameter count, precomputed once at Parse/Describe time.
	Bind1 []byte
	// Bind2 is the result-format codes section of the Bind message.
	Bind2 []byte
}

// shard is one (paramstyle, pid) namespace: the rewritten-statement
// cache and the prepared-statement cache proper.
type shard struct {
	statements map[string]rewriteEntry
	ps         map[Key]*Entry
	maxN       int
}

// rewriteEntry memoizes a paramstyle rewrite result, keyed by the
// original (pre-rewrite) SQL text.
type rewriteEntry struct {
	RewrittenSQL string
}

// Cache is the connection's full two-level prepared-statement cache.
type Cache struct {
	mu       sync.Mutex
	maxPS    int
	shards   map[string]map[int]*shard
	onEvict  func(paramstyle string, pid int, name string)
}

// New returns an empty Cache bounded to maxPreparedStatements entries
// per (paramstyle, pid) shard. onEvict, if non-nil, is called once per
// evicted statement name so the caller can issue Close+Sync against the
// server before the shard is cleared.
func New(maxPreparedStatements int, onEvict func(paramstyle string, pid int, name string)) *Cache {
	return &Cache{
		maxPS:   maxPreparedStatements,
		shards:  make(map[string]map[int]*shard),
		onEvict: onEvict,
	}
}

func (c *Cache) shardFor(paramstyle string, pid int) *shard {
	byPid, ok := c.shards[paramstyle]
	if !ok {
		byPid = make(map[int]*shard)
		c.shards[paramstyle] = byPid
	}
	s, ok := byPid[pid]
	if !ok {
		s = &shard{statements: make(map[string]rewriteEntry), ps: make(map[Key]*Entry)}
		byPid[pid] = s
	}
	return s
}

// Lookup returns the cached Entry for key in the given paramstyle/pid
// shard, if present.
func (c *Cache) Lookup(paramstyle string, pid int, key Key) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.shardFor(paramstyle, pid)
	e, ok := s.ps[key]
	return e, ok
}

// NextStatementName allocates `driver_statement_<pid>_<n>` where n is
// one greater than the maximum n across all paramstyle shards for pid,
// per §4.7 step 4.
func (c *Cache) NextStatementName(pid int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	maxN := 0
	for _, byPid := range c.shards {
		if s, ok := byPid[pid]; ok && s.maxN > maxN {
			maxN = s.maxN
		}
	}
	n := maxN + 1
	recorded := false
	for _, byPid := range c.shards {
		if s, ok := byPid[pid]; ok {
			s.maxN = n
			recorded = true
		}
	}
	if !recorded {
		// No shard exists for pid yet: keep n in an unnamed-paramstyle
		// shard so the next call for pid still counts up from it.
		c.shardFor("", pid).maxN = n
	}
	return fmt.Sprintf("driver_statement_%d_%d", pid, n)
}

// Insert stores entry under key in the given shard, then, if the shard
// now exceeds the configured capacity, evicts every prior entry
// (calling onEvict for each) and keeps only the entry just inserted,
// per §4.8's all-or-nothing eviction policy.
func (c *Cache) Insert(paramstyle string, pid int, key Key, entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.shardFor(paramstyle, pid)
	s.ps[key] = entry

	if c.maxPS > 0 && len(s.ps) > c.maxPS {
		for k, e := range s.ps {
			if k == key {
				continue
			}
			if c.onEvict != nil {
				c.onEvict(paramstyle, pid, e.Name)
			}
		}
		s.ps = map[Key]*Entry{key: entry}
	}
}

// InvalidateAll clears every shard, for full invalidation when a
// completed ALTER/CREATE command tag is observed (§3, §4.7).
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shards = make(map[string]map[int]*shard)
}

// Size reports the number of entries in a shard, for tests.
func (c *Cache) Size(paramstyle string, pid int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if byPid, ok := c.shards[paramstyle]; ok {
		if s, ok := byPid[pid]; ok {
			return len(s.ps)
		}
	}
	return 0
}
