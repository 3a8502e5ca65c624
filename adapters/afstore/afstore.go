// Package afstore implements engine.FileStore on top of the viant/afs
// abstract file storage, so the same adapter serves local file systems, in
// memory storage (mem://) and cloud buckets.
package afstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"

	"github.com/openbp/engine"
)

// Store keeps uploads under <baseURL>/files/<id> with the upload metadata in
// a sidecar object, and detached signatures under <baseURL>/signatures/.
type Store struct {
	fs      afs.Service
	baseURL string
}

var _ engine.FileStore = (*Store)(nil)

func New(baseURL string) *Store {
	return &Store{
		fs:      afs.New(),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (s *Store) fileURL(fileID string) string {
	return s.baseURL + "/files/" + fileID
}

func (s *Store) metaURL(fileID string) string {
	return s.baseURL + "/files/" + fileID + ".meta"
}

func (s *Store) signatureURL(fileID, kind string) string {
	return s.baseURL + "/signatures/" + fileID + "." + kind
}

func (s *Store) UploadFromStream(ctx context.Context, r io.Reader, name, description, contentType string, contentLength int64) (*engine.FileInfo, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	info := engine.FileInfo{
		ID:          uuid.New().String(),
		ContentType: contentType,
		Name:        name,
	}
	sum := sha256.Sum256(content)
	info.Hash = hex.EncodeToString(sum[:])

	err = s.fs.Upload(ctx, s.fileURL(info.ID), file.DefaultFileOsMode, bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	meta := strings.Join([]string{name, contentType, info.Hash, description}, "\n")
	err = s.fs.Upload(ctx, s.metaURL(info.ID), file.DefaultFileOsMode, strings.NewReader(meta))
	if err != nil {
		return nil, err
	}

	return &info, nil
}

func (s *Store) DeleteFile(ctx context.Context, fileID string) error {
	err := s.delete(ctx, s.fileURL(fileID))
	if err != nil {
		return err
	}

	return s.delete(ctx, s.metaURL(fileID))
}

func (s *Store) DeleteSignatureByFileID(ctx context.Context, fileID string) error {
	return s.delete(ctx, s.signatureURL(fileID, "sign"))
}

func (s *Store) DeleteP7sSignatureByFileID(ctx context.Context, fileID string) error {
	return s.delete(ctx, s.signatureURL(fileID, "p7s"))
}

// delete tolerates already-deleted objects: the cleaner retries partially
// cleaned workflows and must not trip over files that are gone.
func (s *Store) delete(ctx context.Context, url string) error {
	ok, err := s.fs.Exists(ctx, url)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	err = s.fs.Delete(ctx, url)
	if err != nil && isAlreadyDeleted(err) {
		return nil
	}

	return err
}

func isAlreadyDeleted(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such file") ||
		strings.Contains(msg, "not exist") ||
		strings.Contains(msg, "cannot delete")
}
