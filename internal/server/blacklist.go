// Package server assembles per-game component stacks and exposes the
// HTTP/WebSocket surface of the transactor.
package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Blacklist tracks game addresses that failed to load so the supervisor
// stops retrying them; one failed load is enough to blacklist a game.  It persists across restarts.
type Blacklist struct {
	mu    sync.Mutex
	path  string
	addrs map[string]struct{}
}

// NewBlacklist loads the blacklist from path; a missing file is an empty
// list.  An empty path keeps the blacklist in memory only.
func NewBlacklist(path string) (*Blacklist, error) {
	b := &Blacklist{path: path, addrs: make(map[string]struct{})}
	if path == "" {
		return b, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blacklist: read %s: %w", path, err)
	}
	var addrs []string
	if err := json.Unmarshal(data, &addrs); err != nil {
		return nil, fmt.Errorf("blacklist: parse %s: %w", path, err)
	}
	for _, a := range addrs {
		b.addrs[a] = struct{}{}
	}
	return b, nil
}

// Contains reports whether the game address is blacklisted.
func (b *Blacklist) Contains(addr string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.addrs[addr]
	return ok
}

// Add blacklists an address and persists the list.
func (b *Blacklist) Add(addr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addrs[addr] = struct{}{}
	if b.path == "" {
		return nil
	}
	addrs := make([]string, 0, len(b.addrs))
	for a := range b.addrs {
		addrs = append(addrs, a)
	}
	data, err := json.Marshal(addrs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(b.path, data, 0644)
}
