// ==================================
// File: internal/session/file.go
// ==================================
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// FileStore персистит сессии в JSON-файл. Запись атомарная:
// сначала во временный файл, затем rename поверх основного.
type FileStore struct {
	mu       sync.RWMutex
	path     string
	sessions map[int64]*Session
}

// NewFileStore загружает сессии из файла path (или стартует с пустым
// состоянием, если файла ещё нет).
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path:     path,
		sessions: make(map[int64]*Session),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read session file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var raw map[string]*Session
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse session file: %w", err)
	}
	for key, s := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q in session file: %w", key, err)
		}
		s.UserID = id
		f.sessions[id] = s
	}
	return nil
}

// flush сериализует все сессии и атомарно перезаписывает файл.
// Вызывается под write-lock.
func (f *FileStore) flush() error {
	raw := make(map[string]*Session, len(f.sessions))
	for id, s := range f.sessions {
		raw[strconv.FormatInt(id, 10)] = s
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "sessions-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp session file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (f *FileStore) Get(_ context.Context, userID int64) (*Session, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *FileStore) Put(_ context.Context, s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *s
	f.sessions[s.UserID] = &copied
	return f.flush()
}

func (f *FileStore) Delete(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[userID]; !ok {
		return nil
	}
	delete(f.sessions, userID)
	return f.flush()
}

func (f *FileStore) All(_ context.Context) ([]*Session, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]*Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		copied := *s
		out = append(out, &copied)
	}
	return out, nil
}

func (f *FileStore) Close() error { return nil }
