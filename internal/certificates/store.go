package certificates

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// PublicStore persists public certificates keyed by PublicCertificateID.
// Implementations are called from a single background runner.
type PublicStore interface {
	// Init opens the store. A corrupt store returns an error.
	Init() error
	// Destroy removes all stored data. Init must be called before reuse.
	Destroy() error
	// Load returns all certificates in insertion order
	Load() ([]PublicCertificate, error)
	// Put inserts or updates certs. New ids are appended to the order.
	Put(certs []PublicCertificate) error
	// Delete removes the given ids. Unknown ids are ignored.
	Delete(ids []string) error
}

const (
	indexFile       = "index.json"
	certificateExt  = ".json"
	publicDirectory = "public_certificates"
)

// FilePublicStore keeps one JSON file per certificate plus an index
// recording insertion order
type FilePublicStore struct {
	mu    sync.Mutex
	dir   string
	order []string
	open  bool
}

// NewFilePublicStore returns a store rooted at <dataDir>/public_certificates
func NewFilePublicStore(dataDir string) *FilePublicStore {
	return &FilePublicStore{dir: filepath.Join(dataDir, publicDirectory)}
}

// Init creates the directory if needed and reads the index
func (s *FilePublicStore) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("failed to create certificate directory: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.order = nil
	case err != nil:
		return fmt.Errorf("failed to read certificate index: %w", err)
	default:
		var order []string
		if err := json.Unmarshal(data, &order); err != nil {
			return fmt.Errorf("corrupt certificate index: %w", err)
		}
		s.order = order
	}
	s.open = true
	return nil
}

// Destroy removes the store directory
func (s *FilePublicStore) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.open = false
	s.order = nil
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove certificate directory: %w", err)
	}
	return nil
}

// Load reads every indexed certificate. A missing or unreadable file is
// reported as corruption.
func (s *FilePublicStore) Load() ([]PublicCertificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, errors.New("certificate store is not open")
	}

	certs := make([]PublicCertificate, 0, len(s.order))
	for _, id := range s.order {
		data, err := os.ReadFile(s.path(id))
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate %s: %w", id, err)
		}
		var cert PublicCertificate
		if err := json.Unmarshal(data, &cert); err != nil {
			return nil, fmt.Errorf("corrupt certificate %s: %w", id, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// Put writes each certificate and then the index
func (s *FilePublicStore) Put(certs []PublicCertificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return errors.New("certificate store is not open")
	}

	order := slices.Clone(s.order)
	for _, cert := range certs {
		id := PublicCertificateID(cert)
		data, err := json.Marshal(cert)
		if err != nil {
			return fmt.Errorf("failed to marshal certificate %s: %w", id, err)
		}
		if err := writeFileAtomic(s.path(id), data); err != nil {
			return err
		}
		if !slices.Contains(order, id) {
			order = append(order, id)
		}
	}
	return s.writeIndex(order)
}

// Delete removes the files for ids and rewrites the index
func (s *FilePublicStore) Delete(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return errors.New("certificate store is not open")
	}

	for _, id := range ids {
		if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove certificate %s: %w", id, err)
		}
	}
	order := slices.DeleteFunc(slices.Clone(s.order), func(id string) bool {
		return slices.Contains(ids, id)
	})
	return s.writeIndex(order)
}

func (s *FilePublicStore) writeIndex(order []string) error {
	if order == nil {
		order = []string{}
	}
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal certificate index: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, indexFile), data); err != nil {
		return err
	}
	s.order = order
	return nil
}

func (s *FilePublicStore) path(id string) string {
	return filepath.Join(s.dir, id+certificateExt)
}

// writeFileAtomic writes to a temp file and renames it into place
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}

// MemoryPublicStore is an in-memory PublicStore. Failures can be injected
// for tests.
type MemoryPublicStore struct {
	mu    sync.Mutex
	certs map[string]PublicCertificate
	order []string
	open  bool

	// InitFailures is the number of upcoming Init calls that fail
	InitFailures int
	// FailWrites makes Put and Delete fail
	FailWrites bool
	// Destroys counts Destroy calls
	Destroys int
}

// NewMemoryPublicStore returns an empty in-memory store
func NewMemoryPublicStore() *MemoryPublicStore {
	return &MemoryPublicStore{certs: map[string]PublicCertificate{}}
}

// Init implements PublicStore
func (s *MemoryPublicStore) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.InitFailures > 0 {
		s.InitFailures--
		return errors.New("injected init failure")
	}
	s.open = true
	return nil
}

// Destroy implements PublicStore
func (s *MemoryPublicStore) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Destroys++
	s.open = false
	s.certs = map[string]PublicCertificate{}
	s.order = nil
	return nil
}

// Load implements PublicStore
func (s *MemoryPublicStore) Load() ([]PublicCertificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, errors.New("certificate store is not open")
	}
	certs := make([]PublicCertificate, 0, len(s.order))
	for _, id := range s.order {
		certs = append(certs, s.certs[id])
	}
	return certs, nil
}

// Put implements PublicStore
func (s *MemoryPublicStore) Put(certs []PublicCertificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open || s.FailWrites {
		return errors.New("injected write failure")
	}
	for _, cert := range certs {
		id := PublicCertificateID(cert)
		if _, ok := s.certs[id]; !ok {
			s.order = append(s.order, id)
		}
		s.certs[id] = cert
	}
	return nil
}

// Delete implements PublicStore
func (s *MemoryPublicStore) Delete(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open || s.FailWrites {
		return errors.New("injected write failure")
	}
	for _, id := range ids {
		delete(s.certs, id)
	}
	s.order = slices.DeleteFunc(s.order, func(id string) bool {
		return slices.Contains(ids, id)
	})
	return nil
}
