// Package memfiles provides an in-memory engine.FileStore for tests and
// local development.
package memfiles

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/openbp/engine"
)

// File is one stored upload.
type File struct {
	Info    engine.FileInfo
	Content []byte
}

type Store struct {
	mu    sync.Mutex
	files map[string]*File
}

var _ engine.FileStore = (*Store)(nil)

func New() *Store {
	return &Store{files: make(map[string]*File)}
}

func (s *Store) UploadFromStream(ctx context.Context, r io.Reader, name, description, contentType string, contentLength int64) (*engine.FileInfo, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(content)
	info := engine.FileInfo{
		ID:          uuid.New().String(),
		ContentType: contentType,
		Name:        name,
		Hash:        hex.EncodeToString(sum[:]),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[info.ID] = &File{Info: info, Content: content}

	return &info, nil
}

// DeleteFile removes the file. Deleting an absent file is not an error,
// mirroring the production store's tolerated "cannot delete" response.
func (s *Store) DeleteFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.files, fileID)
	return nil
}

func (s *Store) DeleteSignatureByFileID(ctx context.Context, fileID string) error {
	return nil
}

func (s *Store) DeleteP7sSignatureByFileID(ctx context.Context, fileID string) error {
	return nil
}

// Lookup returns a stored file. Test helper.
func (s *Store) Lookup(fileID string) (*File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[fileID]
	return f, ok
}

// Count returns the number of stored files. Test helper.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.files)
}
