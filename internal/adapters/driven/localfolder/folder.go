// Package localfolder serves receipts from a directory tree. Each
// subdirectory of the root is one folder; files directly inside it are the
// receipts.
package localfolder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SourceFolder = (*Folder)(nil)

// Folder is a SourceFolder over the local filesystem. File IDs are the
// slash-separated path relative to the root, e.g. "inbox/scan-001.jpg".
// A file's modification time stands in for its creation time.
type Folder struct {
	root string
}

// New creates a Folder rooted at dir. The directory must exist.
func New(dir string) (*Folder, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve folder root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("folder root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, abs)
	}
	return &Folder{root: abs}, nil
}

// ListSince returns regular files in folderID modified after since, oldest
// first. Hidden files are skipped.
func (f *Folder) ListSince(ctx context.Context, folderID string, since time.Time) ([]domain.DiscoveredItem, error) {
	dir, err := f.resolve(folderID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: folder %s", domain.ErrNotFound, folderID)
		}
		return nil, fmt.Errorf("list folder %s: %w", folderID, err)
	}

	var items []domain.DiscoveredItem
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // removed between ReadDir and Info
		}
		created := info.ModTime().UTC()
		if !created.After(since) {
			continue
		}
		items = append(items, domain.DiscoveredItem{
			ID:        folderID + "/" + entry.Name(),
			Name:      entry.Name(),
			MimeType:  f.mimeType(filepath.Join(dir, entry.Name())),
			CreatedAt: created,
			FolderID:  folderID,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// Fetch reads a file by ID.
func (f *Folder) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	path, err := f.resolve(fileID)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", fileID, err)
	}
	return content, nil
}

// resolve maps an ID to a path under the root, rejecting anything that
// would escape it.
func (f *Folder) resolve(id string) (string, error) {
	if id == "" || !fs.ValidPath(id) {
		return "", fmt.Errorf("%w: bad path %q", domain.ErrInvalidInput, id)
	}
	return filepath.Join(f.root, filepath.FromSlash(id)), nil
}

// mimeType guesses from the extension, then sniffs the first 512 bytes.
func (f *Folder) mimeType(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return t
	}
	file, err := os.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer file.Close()

	buf := make([]byte, 512)
	n, _ := file.Read(buf)
	return http.DetectContentType(buf[:n])
}
