package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/schoolhub/apiserver/internal/storage"
	"github.com/schoolhub/apiserver/types"
)

var (
	// ErrInvalidDocumentName is returned for names outside the allowed set.
	ErrInvalidDocumentName = errors.New("invalid document name")
	// ErrDocumentNotFound is returned when the branch has no such document.
	ErrDocumentNotFound = errors.New("document not found")
)

var documentNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ObjectStore is satisfied by *storage.Storage.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Stat(ctx context.Context, key string) (storage.ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// DocumentService stores per-branch documents in object storage.
type DocumentService struct {
	store ObjectStore
}

func NewDocumentService(store ObjectStore) *DocumentService {
	return &DocumentService{store: store}
}

// DocumentKey returns the object key for a branch document.
func DocumentKey(branchID, name string) string {
	return fmt.Sprintf("branches/%s/documents/%s", branchID, name)
}

// ValidDocumentName reports whether name can be used as a document name.
func ValidDocumentName(name string) bool {
	return documentNamePattern.MatchString(name) && !strings.Contains(name, "..")
}

func (s *DocumentService) Put(ctx context.Context, branchID, name string, r io.Reader, size int64, contentType string) (types.Document, error) {
	if !ValidDocumentName(name) {
		return types.Document{}, ErrInvalidDocumentName
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}
	if err := s.store.Put(ctx, DocumentKey(branchID, name), r, size, contentType); err != nil {
		return types.Document{}, fmt.Errorf("put document: %w", err)
	}
	return types.Document{
		BranchID:    branchID,
		Name:        name,
		ContentType: contentType,
		Size:        size,
	}, nil
}

// Get returns document metadata and a reader the caller must close.
func (s *DocumentService) Get(ctx context.Context, branchID, name string) (types.Document, io.ReadCloser, error) {
	if !ValidDocumentName(name) {
		return types.Document{}, nil, ErrInvalidDocumentName
	}
	key := DocumentKey(branchID, name)
	info, err := s.store.Stat(ctx, key)
	if err != nil {
		return types.Document{}, nil, mapObjectError(err)
	}
	body, err := s.store.Get(ctx, key)
	if err != nil {
		return types.Document{}, nil, mapObjectError(err)
	}
	return types.Document{
		BranchID:    branchID,
		Name:        name,
		ContentType: info.ContentType,
		Size:        info.Size,
	}, body, nil
}

func (s *DocumentService) Delete(ctx context.Context, branchID, name string) error {
	if !ValidDocumentName(name) {
		return ErrInvalidDocumentName
	}
	return mapObjectError(s.store.Delete(ctx, DocumentKey(branchID, name)))
}

func mapObjectError(err error) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return ErrDocumentNotFound
	}
	return err
}
