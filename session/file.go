package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFileName is the file used by NewFileStore when given a directory.
const DefaultFileName = "session.json"

// FileStore persists the pair as JSON so a session survives across process
// invocations. The file is written with 0600 permissions and replaced via
// rename, so readers never observe a partially written pair.
type FileStore struct {
	mu   sync.RWMutex
	path string
	pair Pair
}

// NewFileStore opens (or lazily creates) the store at path. If path is an
// existing directory, DefaultFileName inside it is used.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("file store path is required")
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultFileName)
	}

	s := &FileStore{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the location of the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.pair); err != nil {
		return fmt.Errorf("failed to decode session file %q: %w", s.path, err)
	}
	return nil
}

// persist must be called with s.mu held for writing.
func (s *FileStore) persist(pair Pair) error {
	if pair == (Pair{}) {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove session file: %w", err)
		}
		s.pair = pair
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(pair, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	s.pair = pair
	return nil
}

func (s *FileStore) Get() (Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair, nil
}

func (s *FileStore) Set(pair Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(pair)
}

func (s *FileStore) SetAccessToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.pair
	next.AccessToken = token
	return s.persist(next)
}

func (s *FileStore) SetRefreshToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.pair
	next.RefreshToken = token
	return s.persist(next)
}

func (s *FileStore) ReplaceTokens(expect Pair, accessToken, refreshToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pair.sameSession(expect) {
		return false, nil
	}
	if err := s.persist(s.pair.refreshed(accessToken, refreshToken)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(Pair{})
}

func (s *FileStore) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.AccessToken != ""
}

var _ Store = (*FileStore)(nil)
