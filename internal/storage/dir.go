package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DirStore keeps blobs under a local root directory. It backs local runs
// and tests.
type DirStore struct {
	root string
}

func NewDirStore(root string) (*DirStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %q: %w", abs, err)
	}
	return &DirStore{root: abs}, nil
}

// Upload copies localPath to root/logicalPath, replacing any previous blob.
// The copy is written to a temp file and renamed so readers never see a
// partial artifact.
func (s *DirStore) Upload(ctx context.Context, localPath, logicalPath string) error {
	if err := ctx.Err(); err != nil {
		return &UploadError{LogicalPath: logicalPath, Err: err}
	}
	dst, err := s.resolve(logicalPath)
	if err != nil {
		return &UploadError{LogicalPath: logicalPath, Err: err}
	}
	if err := copyFile(localPath, dst); err != nil {
		return &UploadError{LogicalPath: logicalPath, Err: err}
	}
	return nil
}

func (s *DirStore) URI(logicalPath string) string {
	return "file://" + filepath.ToSlash(filepath.Join(s.root, filepath.FromSlash(logicalPath)))
}

// Path returns the local file backing logicalPath.
func (s *DirStore) Path(logicalPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(logicalPath))
}

func (s *DirStore) resolve(logicalPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(logicalPath))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid logical path %q", logicalPath)
	}
	return filepath.Join(s.root, clean), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
