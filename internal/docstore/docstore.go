// Package docstore persists a single JSON document on disk and hands out
// whole-document read and read-modify-write transactions. The file is the
// only source of truth: every transaction decodes it afresh and Update
// rewrites it in full before returning, so readers observe either the pre-
// or post-write state, never a partial one.
package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// IOError wraps a failure to read, decode, or write the backing document.
// Callers translate it into their own storage-fault error kind.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("document %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Store owns one JSON document of type D at a fixed path. The zero value of
// D must be a valid empty document. All writers serialize on one lock, which
// also covers multi-step read-modify-write operations such as id assignment.
type Store[D any] struct {
	path string
	mu   sync.RWMutex
}

// Open returns a store for the document at path. If the file already exists
// it is decoded once up front: malformed stored JSON is a fatal open error,
// not something the store repairs.
func Open[D any](path string) (*Store[D], error) {
	s := &Store[D]{path: path}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, &IOError{Op: "stat", Err: err}
	}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the location of the backing document.
func (s *Store[D]) Path() string { return s.path }

// View decodes the document and passes it to fn under a shared lock.
// Mutations made by fn are discarded.
func (s *Store[D]) View(fn func(doc *D) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	return fn(doc)
}

// Update decodes the document, passes it to fn under the exclusive lock, and
// persists the mutated document atomically when fn succeeds. When fn fails
// nothing is written and fn's error is returned unchanged.
func (s *Store[D]) Update(fn func(doc *D) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.persist(doc)
}

func (s *Store[D]) load() (*D, error) {
	doc := new(D)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return nil, &IOError{Op: "read", Err: err}
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, &IOError{Op: "decode", Err: err}
	}
	return doc, nil
}

// persist writes the document to a temp file in the same directory and moves
// it over the old one, so a crash mid-write never leaves a torn document.
func (s *Store[D]) persist(doc *D) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return &IOError{Op: "encode", Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &IOError{Op: "mkdir", Err: err}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*")
	if err != nil {
		return &IOError{Op: "create temp", Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &IOError{Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &IOError{Op: "close", Err: err}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return &IOError{Op: "rename", Err: err}
	}
	return nil
}
