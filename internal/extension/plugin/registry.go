package plugin

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
)

// Registry scans the plugin directory and maintains an in-memory plugin index
type Registry struct {
	pluginDir string
	plugins   map[string]*Info // keyed by plugin ID
	mu        sync.RWMutex
	logger    *slog.Logger
}

// NewRegistry creates a new plugin registry
func NewRegistry(pluginDir string, logger *slog.Logger) *Registry {
	return &Registry{
		pluginDir: pluginDir,
		plugins:   make(map[string]*Info),
		logger:    logger.With("component", "plugin_registry"),
	}
}

// Scan loads every <dir>/<name>/manifest.json whose binary <dir>/<name>/<name>
// exists. Broken plugins are skipped with a warning.
func (r *Registry) Scan() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.plugins = make(map[string]*Info)

	entries, err := os.ReadDir(r.pluginDir)
	if err != nil {
		return fmt.Errorf("failed to read plugin directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		name := entry.Name()
		dir := filepath.Join(r.pluginDir, name)

		data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
		if err != nil {
			r.logger.Warn("Failed to read manifest", "plugin", name, "error", err)
			continue
		}

		var manifest Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			r.logger.Warn("Failed to parse manifest", "plugin", name, "error", err)
			continue
		}
		if manifest.ID == "" {
			manifest.ID = name
		}

		binaryPath := filepath.Join(dir, name)
		if _, err := os.Stat(binaryPath); err != nil {
			r.logger.Warn("Binary not found", "plugin", name, "path", binaryPath)
			continue
		}

		r.plugins[manifest.ID] = &Info{
			Manifest:   manifest,
			BinaryPath: binaryPath,
			Dir:        dir,
		}

		r.logger.Info("Loaded plugin",
			"id", manifest.ID,
			"name", manifest.Name,
			"version", manifest.Version,
			"sources", manifest.Sources,
			"criteria", manifest.Criteria,
		)
	}

	return nil
}

// GetByID retrieves a plugin by its ID
func (r *Registry) GetByID(id string) (*Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[id]
	return p, ok
}

// List returns all registered plugins sorted by ID
func (r *Registry) List() []*Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Info, 0, len(r.plugins))
	for _, p := range r.plugins {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Manifest.ID < result[j].Manifest.ID
	})
	return result
}

// ForSource returns the plugins declaring the source type, sorted by ID.
func (r *Registry) ForSource(sourceType string) []*Info {
	return r.filter(func(m Manifest) bool { return slices.Contains(m.Sources, sourceType) })
}

// ForCriterion returns the plugins declaring the criterion type, sorted by ID.
func (r *Registry) ForCriterion(criterionType string) []*Info {
	return r.filter(func(m Manifest) bool { return slices.Contains(m.Criteria, criterionType) })
}

func (r *Registry) filter(keep func(Manifest) bool) []*Info {
	var out []*Info
	for _, p := range r.List() {
		if keep(p.Manifest) {
			out = append(out, p)
		}
	}
	return out
}
