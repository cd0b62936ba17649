package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

var _ Store = (*FileStore)(nil)

// fileState is the on-disk shape. A single document holds every slot so a
// rename replaces all of them at once.
type fileState struct {
	Artifacts    *Artifacts    `json:"artifacts,omitempty"`
	PendingLogin *PendingLogin `json:"pending_login,omitempty"`
}

// FileStore persists session state as a JSON document. Writes go through a
// temp file plus rename so readers never observe a partial write.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by the given path. Parent directories
// are created on first write.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("[NewFileStore] path is required")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) SaveArtifacts(a Artifacts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(func(st *fileState) {
		st.Artifacts = &a
	})
}

func (s *FileStore) LoadArtifacts() (Artifacts, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.read()
	if err != nil {
		return Artifacts{}, false, err
	}
	if st.Artifacts == nil {
		return Artifacts{}, false, nil
	}
	return *st.Artifacts, true, nil
}

func (s *FileStore) SavePendingLogin(p PendingLogin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(func(st *fileState) {
		st.PendingLogin = &p
	})
}

func (s *FileStore) LoadPendingLogin() (PendingLogin, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.read()
	if err != nil {
		return PendingLogin{}, false, err
	}
	if st.PendingLogin == nil {
		return PendingLogin{}, false, nil
	}
	return *st.PendingLogin, true, nil
}

func (s *FileStore) ClearPendingLogin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(func(st *fileState) {
		st.PendingLogin = nil
	})
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileStore.Clear] remove")
	}
	return nil
}

func (s *FileStore) read() (fileState, error) {
	var st fileState
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return st, nil
	}
	if err != nil {
		return st, errors.Wrap(err, "[FileStore.read] read file")
	}
	if err := json.Unmarshal(data, &st); err != nil {
		// A corrupt state file is treated as empty rather than wedging
		// the client; the next save overwrites it.
		return fileState{}, nil
	}
	return st, nil
}

func (s *FileStore) update(mutate func(*fileState)) error {
	st, err := s.read()
	if err != nil {
		return err
	}
	mutate(&st)

	data, err := json.Marshal(st)
	if err != nil {
		return errors.Wrap(err, "[FileStore.update] marshal")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "[FileStore.update] mkdir")
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return errors.Wrap(err, "[FileStore.update] create temp")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "[FileStore.update] write temp")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "[FileStore.update] close temp")
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "[FileStore.update] chmod temp")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "[FileStore.update] rename")
	}
	return nil
}
