package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/graph"
)

// FilePayloadStore keeps payloads on the local filesystem below Root.
type FilePayloadStore struct {
	Root string
}

var (
	_ graph.PayloadSource = (*FilePayloadStore)(nil)
	_ graph.PayloadSink   = (*FilePayloadStore)(nil)
)

func NewFilePayloadStore(root string) *FilePayloadStore {
	return &FilePayloadStore{Root: root}
}

// resolve joins name below Root and rejects names escaping it.
func (s *FilePayloadStore) resolve(name string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(name))
	p := filepath.Join(s.Root, clean)
	if !strings.HasPrefix(p, filepath.Clean(s.Root)+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid payload name %q", name)
	}
	return p, nil
}

func (s *FilePayloadStore) Open(ctx context.Context, res *common.Resource) (io.ReadCloser, error) {
	if res.FileKey == "" {
		return nil, fmt.Errorf("resource %d: %w", res.ID, graph.ErrNoPayload)
	}
	p, err := s.resolve(res.FileKey)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("resource %d key %s: %w", res.ID, res.FileKey, graph.ErrNoPayload)
	}
	return f, err
}

func (s *FilePayloadStore) Put(ctx context.Context, name string, body io.Reader, contentType string) error {
	p, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return f.Close()
}
