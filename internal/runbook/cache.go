package runbook

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/oddjobs/oj/internal/ojerr"
)

// Cache is the lock-guarded, content-addressed runbook cache from
// spec.md §5: "races produce at most a redundant load". singleflight is
// the idiomatic Go answer to that invariant — concurrent loads of the same
// hash collapse into a single disk read (SPEC_FULL.md §4 domain stack).
type Cache struct {
	mu    sync.RWMutex
	byHash map[string]*Document
	group  singleflight.Group
}

func NewCache() *Cache {
	return &Cache{byHash: make(map[string]*Document)}
}

// Get returns a cached document by hash, if present.
func (c *Cache) Get(hash string) (*Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byHash[hash]
	return d, ok
}

// Put installs a document directly (used by tests constructing fixtures
// in-memory without touching disk).
func (c *Cache) Put(doc *Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byHash[doc.Hash] = doc
}

// LoadFromPath loads and parses the runbook at path, deduping concurrent
// loads of the same underlying bytes via singleflight, and caches the
// result by content hash. Returns ojerr.RunbookLoad on I/O or parse
// failure, surfaced with path context per spec.md §7.
func (c *Cache) LoadFromPath(path string) (*Document, error) {
	v, err, _ := c.group.Do(path, func() (interface{}, error) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, ojerr.Wrap(ojerr.RunbookLoad, fmt.Sprintf("reading %s", path), err)
		}
		hash := Hash(raw)

		if cached, ok := c.Get(hash); ok {
			return cached, nil
		}

		var doc Document
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, ojerr.Wrap(ojerr.RunbookLoad, fmt.Sprintf("parsing %s", path), err)
		}
		doc.Hash = hash
		c.Put(&doc)
		return &doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Document), nil
}

// MustParse parses raw runbook bytes directly, used by tests building
// fixtures from embedded YAML (SPEC_FULL.md §4 "runbook-adjacent fixtures
// used by tests").
func MustParse(raw []byte) *Document {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		panic(err)
	}
	doc.Hash = Hash(raw)
	return &doc
}
