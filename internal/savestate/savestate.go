// Package savestate stores interpreter snapshots as msgpack files.
package savestate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"storyvm/internal/vm"
)

// Current schema version - increment when the envelope format changes
const schemaVersion uint16 = 1

// ErrSchema reports a saved-state file written by an incompatible version.
var ErrSchema = errors.New("unsupported saved-state schema")

type envelope struct {
	Schema   uint16       `msgpack:"schema"`
	Snapshot *vm.Snapshot `msgpack:"snap"`
}

// Encode writes s to w.
func Encode(w io.Writer, s *vm.Snapshot) error {
	return msgpack.NewEncoder(w).Encode(&envelope{Schema: schemaVersion, Snapshot: s})
}

// Decode reads a snapshot written by Encode.
func Decode(r io.Reader) (*vm.Snapshot, error) {
	var env envelope
	if err := msgpack.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode saved state: %w", err)
	}
	if env.Schema != schemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrSchema, env.Schema)
	}
	if env.Snapshot == nil {
		return nil, fmt.Errorf("decode saved state: empty snapshot")
	}
	return env.Snapshot, nil
}

// FileStore keeps one snapshot in a file. The file is replaced atomically.
// Thread-safe for concurrent access.
type FileStore struct {
	mu   sync.RWMutex
	path string
}

// NewFileStore returns a store backed by path. The file is created on the
// first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// Save implements vm.SaveStore.
func (s *FileStore) Save(snap *vm.Snapshot) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}()

	if err := Encode(f, snap); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), s.path)
}

// Load implements vm.SaveStore. A missing file yields vm.ErrNoSavedState.
func (s *FileStore) Load() (*vm.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, vm.ErrNoSavedState
		}
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	return Decode(f)
}

// MemStore keeps the encoded snapshot in memory, for batch runs and tests.
type MemStore struct {
	mu   sync.Mutex
	data []byte
}

func (m *MemStore) Save(snap *vm.Snapshot) error {
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		return err
	}
	m.mu.Lock()
	m.data = buf.Bytes()
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Load() (*vm.Snapshot, error) {
	m.mu.Lock()
	data := m.data
	m.mu.Unlock()
	if data == nil {
		return nil, vm.ErrNoSavedState
	}
	return Decode(bytes.NewReader(data))
}

// Len reports the size of the stored encoding.
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
