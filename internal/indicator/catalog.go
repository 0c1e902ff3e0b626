package indicator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xbeat/certicredia-sub001/internal/domain"
)

// Catalog holds prepared definitions keyed by indicator id.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]*domain.Indicator
}

func NewCatalog() *Catalog {
	return &Catalog{defs: make(map[string]*domain.Indicator)}
}

// LoadDir reads every .json, .yaml and .yml file in dir.
func LoadDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	c := NewCatalog()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		def, err := Decode(e.Name(), data)
		if err != nil {
			return nil, err
		}
		if err := c.Put(def); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return c, nil
}

// Put prepares def and registers it, replacing any previous definition.
func (c *Catalog) Put(def *domain.Indicator) error {
	if err := Prepare(def); err != nil {
		return err
	}
	c.mu.Lock()
	c.defs[def.ID] = def
	c.mu.Unlock()
	return nil
}

// Get returns the prepared definition. Callers must treat it as read-only.
func (c *Catalog) Get(id string) (*domain.Indicator, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownIndicator, id)
	}
	return def, nil
}

// IDs lists loaded indicator ids in lexical order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.defs))
	for id := range c.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.defs)
}
