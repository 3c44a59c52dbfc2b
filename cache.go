// cache.go — C: module cache.
//
// Grounded on sandrolain-gosonata/pkg/cache's thread-safe, capacity-bounded
// shape (sync.RWMutex guarding a map, container/list as the LRU spine),
// since module install/purge must be safe under concurrent calls.
// Strengthened per DESIGN.md's Open Question #2: each entry additionally
// stores a content hash, so a module_id reused with different source
// invalidates instead of silently serving stale code.
package sandbox

import (
	"container/list"
	"crypto/sha256"
	"log/slog"
	"sync"

	"github.com/daios-ai/sandeval/ast"
)

// compiledModule is what C remembers about a persistent module: the
// parsed+shape-checked AST, the digest of the source it was built from,
// and the set of (function, arity) pairs already run through N and V for
// this module_id. A cache hit always skips P and S; it additionally skips
// V for a function once that function has been validated once for this
// module_id. N still runs on every hit, as a lookup over the cached AST.
// The AST has no separate "install" step to amortize
// against, since internal/runtime interprets the admitted AST directly,
// so the only repeatable work worth memoizing is validation itself. This
// is a documented refinement of spec.md §4.7 for a module with no process-
// wide host symbol table to install into (see DESIGN.md).
type compiledModule struct {
	digest    [sha256.Size]byte
	root      *ast.DefModule
	mu        sync.Mutex
	validated map[funcKey]bool
}

func (m *compiledModule) alreadyValidated(key funcKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validated[key]
}

func (m *compiledModule) markValidated(key funcKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.validated == nil {
		m.validated = make(map[funcKey]bool)
	}
	m.validated[key] = true
}

// moduleCache is a bounded, thread-safe LRU keyed by module_id (spec.md
// §4.7). What a hit lets Eval skip is described on compiledModule: P and S
// always, V once per (function, arity); N runs on every call.
type moduleCache struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	logger   *slog.Logger
}

type cacheNode struct {
	key   string
	value *compiledModule
}

func newModuleCache(capacity int, logger *slog.Logger) *moduleCache {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = 256
	}
	return &moduleCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		logger:   logger,
	}
}

// get returns the cached module for key if present and its digest matches
// codeDigest; a digest mismatch is treated as a miss (spec.md §9's
// code-hash strengthening) and the stale entry is evicted.
func (c *moduleCache) get(key string, codeDigest [sha256.Size]byte) (*compiledModule, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		c.logger.Debug("sandbox cache miss", "module_id", key)
		return nil, false
	}
	node := el.Value.(*cacheNode)
	if node.value.digest != codeDigest {
		c.logger.Debug("sandbox cache stale entry evicted", "module_id", key)
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	c.logger.Debug("sandbox cache hit", "module_id", key)
	return node.value, true
}

// put installs or replaces the entry for key, evicting the least-recently
// used entry if the cache is at capacity.
func (c *moduleCache) put(key string, codeDigest [sha256.Size]byte, root *ast.DefModule) *compiledModule {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := &compiledModule{digest: codeDigest, root: root}
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheNode).value = entry
		c.order.MoveToFront(el)
		return entry
	}
	el := c.order.PushFront(&cacheNode{key: key, value: entry})
	c.entries[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheNode).key)
			c.logger.Debug("sandbox cache evicted", "module_id", oldest.Value.(*cacheNode).key)
		}
	}
	return entry
}

// purge removes key's entry, per spec.md §4.6's ephemeral-mode contract
// ("on persistent=false, purging and deleting the compiled unit after the
// call so the process-wide module table does not grow").
func (c *moduleCache) purge(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
		c.logger.Debug("sandbox cache purged", "module_id", key)
	}
}

func digestOf(code []byte) [sha256.Size]byte {
	return sha256.Sum256(code)
}
