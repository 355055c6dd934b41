// Package storage holds the object store the relay uses for uploaded
// media. The disk implementation writes under a single directory served
// back over HTTP at /media/.
package storage

import (
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ObjectStore persists media blobs and hands back a public reference.
type ObjectStore interface {
	Store(data []byte, mimeType, suggestedName string) (string, error)
	Delete(ref string) error
}

type DiskStore struct {
	dir     string
	baseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media dir: %w", err)
	}
	return &DiskStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Store writes the blob under a fresh uuid name and returns its public
// URL. The suggested name only contributes its extension.
func (s *DiskStore) Store(data []byte, mimeType, suggestedName string) (string, error) {
	name := uuid.New().String() + extensionFor(mimeType, suggestedName)
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("[STORAGE] Failed to write %s: %v", name, err)
		return "", fmt.Errorf("failed to store object: %w", err)
	}

	log.Printf("[STORAGE] Stored %s (%d bytes)", name, len(data))
	return s.baseURL + "/media/" + name, nil
}

// Delete removes the object behind a reference previously returned by
// Store. References from other hosts are ignored.
func (s *DiskStore) Delete(ref string) error {
	idx := strings.LastIndex(ref, "/media/")
	if idx < 0 {
		return nil
	}
	name := filepath.Base(ref[idx+len("/media/"):])
	if name == "." || name == "/" {
		return nil
	}

	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		log.Printf("[STORAGE] Failed to delete %s: %v", name, err)
		return err
	}
	log.Printf("[STORAGE] Deleted %s", name)
	return nil
}

// Dir exposes the backing directory for the HTTP file server.
func (s *DiskStore) Dir() string {
	return s.dir
}

func extensionFor(mimeType, suggestedName string) string {
	if ext := filepath.Ext(suggestedName); ext != "" && len(ext) <= 8 {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
