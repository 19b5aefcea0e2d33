package buildsys

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CacheFile is the name of the build cache stored in every install tree.
const CacheFile = ".cache.json"

// cacheEntry records one successful install.
type cacheEntry struct {
	Config    string    `json:"config"`
	BuildTime time.Time `json:"build_time"`
}

// cacheIndex maps "version-configID" keys to their entries.
type cacheIndex struct {
	Cache map[string]*cacheEntry `json:"cache"`
}

func cacheKey(req *Request) string {
	return req.Ref.Version + "-" + req.Config.ID()
}

// Cache wraps a Backend and records every successful Install in the install
// tree. A later request for the same version and configuration reports
// Installed, which lets the runner skip all phases.
type Cache struct {
	Backend Backend

	mu  sync.Mutex
	now func() time.Time
}

// NewCache returns a Cache around b.
func NewCache(b Backend) *Cache {
	return &Cache{Backend: b, now: time.Now}
}

// Run delegates to the wrapped backend and records the install on success.
func (c *Cache) Run(ctx context.Context, req *Request) error {
	if err := c.Backend.Run(ctx, req); err != nil {
		return err
	}
	if req.Phase != Install {
		return nil
	}
	return c.record(req)
}

// Installed reports whether req's install tree holds a matching cache entry.
func (c *Cache) Installed(req *Request) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, err := loadCache(req.InstallDir)
	if err != nil {
		return false
	}
	entry, ok := idx.Cache[cacheKey(req)]
	return ok && entry.Config == req.Config.String()
}

func (c *Cache) record(req *Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, err := loadCache(req.InstallDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		idx = &cacheIndex{}
	}
	if idx.Cache == nil {
		idx.Cache = make(map[string]*cacheEntry)
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	idx.Cache[cacheKey(req)] = &cacheEntry{
		Config:    req.Config.String(),
		BuildTime: now().UTC(),
	}
	return saveCache(req.InstallDir, idx)
}

func loadCache(dir string) (*cacheIndex, error) {
	data, err := os.ReadFile(filepath.Join(dir, CacheFile))
	if err != nil {
		return nil, err
	}
	var idx cacheIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

func saveCache(dir string, idx *cacheIndex) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, CacheFile), data, 0o644)
}
