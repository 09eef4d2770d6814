package graph

import (
	"archive/zip"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// ManifestName is the name under which the export manifest is written.
const ManifestName = "manifest.json"

// ErrNoPayload is returned by a PayloadSource for content resources whose
// payload is not held in storage, such as external locations.
var ErrNoPayload = errors.New("resource has no stored payload")

// PayloadSource opens the stored payload of a content resource.
type PayloadSource interface {
	Open(ctx context.Context, res *common.Resource) (io.ReadCloser, error)
}

// PayloadSink receives exported payloads.
type PayloadSink interface {
	Put(ctx context.Context, name string, body io.Reader, contentType string) error
}

// NamingFunc maps a content resource to the name it is exported under.
type NamingFunc func(res *common.Resource) string

// ExportOptions configures an export. Parallel overrides the client's number
// of concurrent transfers.
type ExportOptions struct {
	ContentType string
	Parallel    int
	Manifest    bool
}

// ManifestEntry describes one exported file.
type ManifestEntry struct {
	Name        string `json:"name"`
	ResourceID  int64  `json:"resource_id"`
	URI         string `json:"uri"`
	ContentType string `json:"content_type"`
}

// ExportResult summarizes an export.
type ExportResult struct {
	Exported int             `json:"exported"`
	Skipped  []int64         `json:"skipped,omitempty"`
	Entries  []ManifestEntry `json:"entries"`
}

// DefaultNaming names a resource after its id and name, adding an extension
// derived from the content type when the name has none.
func DefaultNaming(res *common.Resource) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(res.Name))
	if name == "" {
		name = "resource"
	}
	if path.Ext(name) == "" && res.ContentType != "" {
		if exts, err := mime.ExtensionsByType(res.ContentType); err == nil && len(exts) > 0 {
			name += exts[0]
		}
	}
	return fmt.Sprintf("%d-%s", res.ID, name)
}

// exportNames hands out unique names for one export and remembers which
// resources were already written.
type exportNames struct {
	naming NamingFunc
	used   map[string]struct{}
	seen   map[int64]struct{}
}

func newExportNames(naming NamingFunc) *exportNames {
	if naming == nil {
		naming = DefaultNaming
	}
	return &exportNames{
		naming: naming,
		used:   map[string]struct{}{ManifestName: {}},
		seen:   map[int64]struct{}{},
	}
}

// next returns the name for res, or false when res was already handed out
// for an earlier root.
func (n *exportNames) next(res *common.Resource) (string, bool) {
	if _, ok := n.seen[res.ID]; ok {
		return "", false
	}
	n.seen[res.ID] = struct{}{}

	name := n.naming(res)
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; ; i++ {
		if _, taken := n.used[name]; !taken {
			break
		}
		if i == 0 {
			name = fmt.Sprintf("%s-%d%s", stem, res.ID, ext)
		} else {
			name = fmt.Sprintf("%s-%d-%d%s", stem, res.ID, i, ext)
		}
	}
	n.used[name] = struct{}{}
	return name, true
}

// Export copies the content aggregated from roots into target, transferring
// several payloads at once. Resources without a stored payload are skipped
// and reported. Names come from naming, or DefaultNaming when it is nil.
func (g *GraphClient) Export(ctx context.Context, roots []int64, target PayloadSink, naming NamingFunc, opts ExportOptions) (*ExportResult, error) {
	if g.payloads == nil {
		return nil, errors.New("graph client has no payload source")
	}
	parallel := opts.Parallel
	if parallel <= 0 {
		parallel = g.exportWorkers
	}

	var (
		mu  sync.Mutex
		res = &ExportResult{}
	)
	names := newExportNames(naming)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(parallel)

	for r, err := range g.AggregateContent(gctx, roots, AggregateOptions{ContentType: opts.ContentType}) {
		if err != nil {
			if werr := eg.Wait(); werr != nil {
				return nil, werr
			}
			return nil, err
		}
		name, ok := names.next(r)
		if !ok {
			continue
		}
		eg.Go(func() error {
			body, err := g.payloads.Open(gctx, r)
			if errors.Is(err, ErrNoPayload) {
				logger.Warn("[Export] No stored payload, skipping", "resource", r.ID, "location", r.Location)
				mu.Lock()
				res.Skipped = append(res.Skipped, r.ID)
				mu.Unlock()
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to open payload of resource %d: %w", r.ID, err)
			}
			defer body.Close()
			if err := target.Put(gctx, name, body, r.ContentType); err != nil {
				return fmt.Errorf("failed to export resource %d: %w", r.ID, err)
			}
			mu.Lock()
			res.Exported++
			res.Entries = append(res.Entries, manifestEntry(name, r))
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sortEntries(res)
	if opts.Manifest {
		data, err := json.MarshalIndent(res.Entries, "", "  ")
		if err != nil {
			return nil, err
		}
		if err := target.Put(ctx, ManifestName, strings.NewReader(string(data)), "application/json"); err != nil {
			return nil, fmt.Errorf("failed to write manifest: %w", err)
		}
	}
	logger.Info("[Export] Finished", "roots", roots, "exported", res.Exported, "skipped", len(res.Skipped))
	return res, nil
}

// ExportArchive writes the content aggregated from roots into a zip archive.
func (g *GraphClient) ExportArchive(ctx context.Context, roots []int64, w io.Writer, naming NamingFunc, opts ExportOptions) (*ExportResult, error) {
	if g.payloads == nil {
		return nil, errors.New("graph client has no payload source")
	}
	zw := zip.NewWriter(w)
	res := &ExportResult{}
	names := newExportNames(naming)

	for r, err := range g.AggregateContent(ctx, roots, AggregateOptions{ContentType: opts.ContentType}) {
		if err != nil {
			return nil, err
		}
		name, ok := names.next(r)
		if !ok {
			continue
		}
		body, err := g.payloads.Open(ctx, r)
		if errors.Is(err, ErrNoPayload) {
			logger.Warn("[Export] No stored payload, skipping", "resource", r.ID, "location", r.Location)
			res.Skipped = append(res.Skipped, r.ID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open payload of resource %d: %w", r.ID, err)
		}
		err = writeZipEntry(zw, name, r.UpdatedAt, body)
		body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to archive resource %d: %w", r.ID, err)
		}
		res.Exported++
		res.Entries = append(res.Entries, manifestEntry(name, r))
	}

	if opts.Manifest {
		data, err := json.MarshalIndent(res.Entries, "", "  ")
		if err != nil {
			return nil, err
		}
		if err := writeZipEntry(zw, ManifestName, time.Now(), strings.NewReader(string(data))); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return res, nil
}

func writeZipEntry(zw *zip.Writer, name string, modified time.Time, body io.Reader) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, body)
	return err
}

func manifestEntry(name string, r *common.Resource) ManifestEntry {
	return ManifestEntry{
		Name:        name,
		ResourceID:  r.ID,
		URI:         r.URI,
		ContentType: r.ContentType,
	}
}

// sortEntries restores a deterministic order after concurrent transfers.
func sortEntries(res *ExportResult) {
	slices.SortFunc(res.Entries, func(a, b ManifestEntry) int {
		return cmp.Compare(a.ResourceID, b.ResourceID)
	})
	res.Skipped = common.SortedIDs(res.Skipped)
}
