package header

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/raymyers/ralph-cdecl/pkg/config"
)

// Cache keeps finalized units keyed by source name, content and the
// config fingerprint. An entry is dropped when a file it included has
// changed since it was parsed. Concurrent requests for the same key share
// one parse. Cached units are shared and must not be modified.
type Cache struct {
	units *lru.Cache[string, *cached]
	group singleflight.Group
	parse func(ctx context.Context, name, src string, cfg *config.Config) (*Unit, error)
}

type cached struct {
	unit *Unit
	deps map[string]string // included path -> content hash
}

// NewCache creates a cache holding at most size units
func NewCache(size int) (*Cache, error) {
	units, err := lru.New[string, *cached](size)
	if err != nil {
		return nil, err
	}
	return &Cache{units: units, parse: Parse}, nil
}

// Parse is like the package-level Parse but answers from the cache when
// it can. Failed parses are not cached. A shared parse is not stopped by
// one caller's ctx; that caller stops waiting and the others get the unit.
func (c *Cache) Parse(ctx context.Context, name, src string, cfg *config.Config) (*Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.New()
	}
	key := hashString(name+"\x00"+src) + ":" + cfg.Fingerprint()
	if e, ok := c.units.Get(key); ok {
		if e.fresh() {
			return e.unit, nil
		}
		c.units.Remove(key)
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if e, ok := c.units.Peek(key); ok && e.fresh() {
			return e.unit, nil
		}
		u, err := c.parse(shared, name, src, cfg)
		if err != nil {
			return nil, err
		}
		c.units.Add(key, &cached{unit: u, deps: hashFiles(u.Included)})
		return u, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Unit), nil
	}
}

// ParseFile reads path and parses it through the cache
func (c *Cache) ParseFile(ctx context.Context, path string, cfg *config.Config) (*Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return c.Parse(ctx, path, string(data), cfg)
}

// Len returns the number of cached units
func (c *Cache) Len() int {
	return c.units.Len()
}

// Purge empties the cache
func (c *Cache) Purge() {
	c.units.Purge()
}

func (e *cached) fresh() bool {
	for path, sum := range e.deps {
		if hashFile(path) != sum {
			return false
		}
	}
	return true
}

func hashFiles(paths []string) map[string]string {
	deps := make(map[string]string, len(paths))
	for _, path := range paths {
		deps[path] = hashFile(path)
	}
	return deps
}

// hashFile returns "" for a file that cannot be read
func hashFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return hashString(string(data))
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
