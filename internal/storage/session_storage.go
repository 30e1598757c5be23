package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TokenKey is the fixed key under which the bearer token is persisted
const TokenKey = "token"

// ErrKeyNotFound is returned when a key is absent from the session
var ErrKeyNotFound = errors.New("session key not found")

// SessionStorage defines the persisted client storage used by the console
type SessionStorage interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	Clear() error
}

// FileSessionStorage implements SessionStorage with an in-memory map mirrored to a JSON file
type FileSessionStorage struct {
	mu        sync.RWMutex
	values    map[string]string
	updatedAt time.Time
	dataFile  string
}

// sessionDocument is the on-disk shape of the session file
type sessionDocument struct {
	Values    map[string]string `json:"values"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// NewFileSessionStorage opens (or creates) the session file at path
func NewFileSessionStorage(path string) (*FileSessionStorage, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	s := &FileSessionStorage{
		values:   make(map[string]string),
		dataFile: path,
	}

	if err := s.loadFromFile(); err != nil {
		// A corrupt session only costs a new login
		slog.Warn("Could not load session file, starting with empty session",
			"path", path,
			"error", err)
		s.values = make(map[string]string)
	}

	return s, nil
}

// Get returns the value stored under key
func (s *FileSessionStorage) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.values[key]
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return value, nil
}

// Set stores value under key and persists the session
func (s *FileSessionStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	s.updatedAt = time.Now()
	return s.saveToFile()
}

// Delete removes key and persists the session
func (s *FileSessionStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.values[key]; !exists {
		return nil
	}
	delete(s.values, key)
	s.updatedAt = time.Now()
	return s.saveToFile()
}

// Clear removes every key and persists the empty session
func (s *FileSessionStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values = make(map[string]string)
	s.updatedAt = time.Now()
	return s.saveToFile()
}

// loadFromFile loads the session document if the file exists
func (s *FileSessionStorage) loadFromFile() error {
	data, err := os.ReadFile(s.dataFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session file: %w", err)
	}

	var doc sessionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if doc.Values != nil {
		s.values = doc.Values
	}
	s.updatedAt = doc.UpdatedAt
	return nil
}

// saveToFile writes the session document; callers hold the write lock
func (s *FileSessionStorage) saveToFile() error {
	doc := sessionDocument{
		Values:    s.values,
		UpdatedAt: s.updatedAt,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := os.WriteFile(s.dataFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// MemorySessionStorage is a non-persistent SessionStorage, used by tests and
// by the console when no session file is configured
type MemorySessionStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemorySessionStorage creates an empty in-memory session
func NewMemorySessionStorage() *MemorySessionStorage {
	return &MemorySessionStorage{values: make(map[string]string)}
}

func (m *MemorySessionStorage) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, exists := m.values[key]
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return value, nil
}

func (m *MemorySessionStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemorySessionStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemorySessionStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]string)
	return nil
}
