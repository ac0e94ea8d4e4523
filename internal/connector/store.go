package connector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Store holds the connector templates known to the agent.
type Store struct {
	dir        string
	connectors map[string]*Connector
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewStore creates an empty store reading from dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{
		dir:        dir,
		connectors: make(map[string]*Connector),
		logger:     logger.With("component", "connector_store"),
	}
}

// NewStoreFrom creates a store holding the given connectors, for embedding
// and tests.
func NewStoreFrom(logger *slog.Logger, connectors ...*Connector) *Store {
	s := NewStore("", logger)
	for _, c := range connectors {
		s.connectors[c.ID] = c
	}
	return s
}

// Load reads every *.yaml / *.yml file of the directory. The store is only
// replaced when every file parses, so a broken edit never leaves a host with
// half a connector set.
func (s *Store) Load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read connector directory: %w", err)
	}

	loaded := make(map[string]*Connector)
	for _, entry := range entries {
		if entry.IsDir() || !isConnectorFile(entry.Name()) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read connector %s: %w", path, err)
		}

		c, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if prev, dup := loaded[c.ID]; dup {
			return fmt.Errorf("%s: connector %q already defined in %s", path, c.ID, prev.SourceFile)
		}
		c.SourceFile = path
		loaded[c.ID] = c
	}

	s.mu.Lock()
	s.connectors = loaded
	s.mu.Unlock()

	s.logger.Info("connectors loaded", "dir", s.dir, "count", len(loaded))
	return nil
}

// Get returns a connector template. Callers must not mutate it.
func (s *Store) Get(id string) (*Connector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.connectors[id]
	return c, ok
}

// List returns every connector, ordered by id.
func (s *Store) List() []*Connector {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Connector, 0, len(s.connectors))
	for _, c := range s.connectors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Watch reloads the store whenever a connector file is written, created,
// removed or renamed, and calls onReload after each successful reload. A
// failed reload is logged and the previous connectors stay active. It runs
// until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, onReload func(count int)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return err
	}

	s.logger.Info("watching connector directory", "dir", s.dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isConnectorFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			if err := s.Load(); err != nil {
				s.logger.Error("connector reload failed, keeping previous connectors",
					"file", event.Name,
					"error", err,
				)
				continue
			}

			if onReload != nil {
				onReload(len(s.List()))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("connector watcher error", "error", err)
		}
	}
}

func isConnectorFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
