// Package params persists the mission window across restarts. All other
// engine state reinitialises to safe defaults on start-up.
package params

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/signalsfoundry/stellar-auth/auth"
)

// ErrNotFound is returned by Load when no window has been stored yet.
var ErrNotFound = errors.New("mission window not stored")

const fileFormatVersion = 1

// Store loads and saves the mission window.
type Store interface {
	Load(ctx context.Context) (auth.MissionWindow, error)
	Save(ctx context.Context, w auth.MissionWindow) error
}

// subscribers fans saved windows out to callbacks.
type subscribers struct {
	mu   sync.Mutex
	subs map[int]func(auth.MissionWindow)
	next int
}

// Subscribe registers a callback invoked after every successful Save. It
// returns an unsubscribe function.
func (s *subscribers) Subscribe(fn func(auth.MissionWindow)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]func(auth.MissionWindow))
	}
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *subscribers) notify(w auth.MissionWindow) {
	s.mu.Lock()
	fns := make([]func(auth.MissionWindow), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	// Callbacks run outside the lock so they may call back into the store.
	for _, fn := range fns {
		fn(w)
	}
}

type fileRecord struct {
	Version int                `json:"version"`
	Window  auth.MissionWindow `json:"window"`
}

// FileStore keeps the window in a JSON file replaced atomically on Save.
type FileStore struct {
	subscribers
	path string
}

// NewFileStore constructs a FileStore at path. The parent directory is
// created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the stored window.
func (s *FileStore) Load(ctx context.Context) (auth.MissionWindow, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return auth.MissionWindow{}, ErrNotFound
	}
	if err != nil {
		return auth.MissionWindow{}, fmt.Errorf("read %s: %w", s.path, err)
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return auth.MissionWindow{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if rec.Version != fileFormatVersion {
		return auth.MissionWindow{}, fmt.Errorf("decode %s: unsupported version %d", s.path, rec.Version)
	}
	return rec.Window, nil
}

// Save writes w atomically.
func (s *FileStore) Save(ctx context.Context, w auth.MissionWindow) error {
	data, err := json.MarshalIndent(fileRecord{Version: fileFormatVersion, Window: w}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode mission window: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(s.path), err)
	}
	if err := renameio.WriteFile(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	s.notify(w)
	return nil
}

// MemoryStore keeps the window in memory.
type MemoryStore struct {
	subscribers
	mu     sync.Mutex
	window *auth.MissionWindow
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load(context.Context) (auth.MissionWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.window == nil {
		return auth.MissionWindow{}, ErrNotFound
	}
	return *s.window, nil
}

func (s *MemoryStore) Save(_ context.Context, w auth.MissionWindow) error {
	s.mu.Lock()
	s.window = &w
	s.mu.Unlock()
	s.notify(w)
	return nil
}
