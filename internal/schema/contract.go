// Package schema loads the event schema contract: the known property keys
// per event name. The contract is advisory - events with unknown keys are
// always accepted; ingestion only logs when a known event carries none of
// its documented keys, which usually means a client-side regression.
package schema

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Contract maps event names to their documented property keys
type Contract struct {
	Events map[string]EventContract `yaml:"events"`
}

// EventContract documents one event name
type EventContract struct {
	Type       string   `yaml:"type"`
	Properties []string `yaml:"properties"`
}

// Registry holds the current contract and supports hot reload
type Registry struct {
	mu       sync.RWMutex
	contract Contract
	path     string
}

// Load reads the contract file. A missing file is not an error - the
// registry just stays empty and ingestion skips advisory checks.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.reload(); err != nil {
		if os.IsNotExist(err) {
			log.Printf("⚠️  [SCHEMA] Contract file %s not found, advisory checks disabled", path)
			return r, nil
		}
		return nil, err
	}
	return r, nil
}

func (r *Registry) reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}

	var contract Contract
	if err := yaml.Unmarshal(data, &contract); err != nil {
		return fmt.Errorf("failed to parse event schema contract: %w", err)
	}

	r.mu.Lock()
	r.contract = contract
	r.mu.Unlock()

	log.Printf("✅ [SCHEMA] Loaded contract for %d event names from %s", len(contract.Events), r.path)
	return nil
}

// KnownKeys returns the documented property keys for an event name.
// The second return is false when the event name is not in the contract.
func (r *Registry) KnownKeys(eventName string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ec, ok := r.contract.Events[eventName]
	if !ok {
		return nil, false
	}
	return ec.Properties, true
}

// CheckProperties reports whether a known event carries at least one of its
// documented keys. Unknown event names and empty contracts always pass.
func (r *Registry) CheckProperties(eventName string, properties map[string]interface{}) bool {
	keys, ok := r.KnownKeys(eventName)
	if !ok || len(keys) == 0 {
		return true
	}
	if len(properties) == 0 {
		return false
	}
	for _, k := range keys {
		if _, present := properties[k]; present {
			return true
		}
	}
	return false
}

// Watch re-reads the contract file when it changes on disk.
// Runs until the watcher fails; call in a goroutine.
func (r *Registry) Watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  [SCHEMA] Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(r.path)
	if err != nil {
		log.Printf("⚠️  [SCHEMA] Failed to resolve %s: %v", r.path, err)
		return
	}

	// Watch the directory containing the file (more reliable than watching
	// the file directly - editors often replace rather than rewrite)
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)

	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️  [SCHEMA] Failed to watch directory %s: %v", dir, err)
		return
	}

	log.Printf("👁️  [SCHEMA] Watching %s for changes (hot-reload enabled)", r.path)

	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := r.reload(); err != nil {
						log.Printf("❌ [SCHEMA] Failed to reload contract: %v", err)
					}
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  [SCHEMA] File watcher error: %v", err)
		}
	}
}
