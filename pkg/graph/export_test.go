package graph

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/store/memory"
)

type fakePayloads struct {
	files map[string]string
}

func (f fakePayloads) Open(ctx context.Context, res *common.Resource) (io.ReadCloser, error) {
	if res.FileKey == "" {
		return nil, ErrNoPayload
	}
	body, ok := f.files[res.FileKey]
	if !ok {
		return nil, errors.New("no such file " + res.FileKey)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

type fakeSink struct {
	mu    sync.Mutex
	files map[string]string
}

func (s *fakeSink) Put(ctx context.Context, name string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = make(map[string]string)
	}
	s.files[name] = string(data)
	return nil
}

func newExportClient(t *testing.T) (*GraphClient, int64, []int64) {
	t.Helper()
	payloads := fakePayloads{files: map[string]string{
		"files/letter.pdf": "%PDF-1.7",
		"files/page.txt":   "My dear Hooker",
	}}
	g := newTestClientWith(t, memory.New(), payloads)

	doc := mustResource(t, g, &common.Resource{EntityBase: common.EntityBase{Name: "letter"}})
	pdf := mustContent(t, g, doc, "letter.pdf", "application/pdf")
	txt := mustContent(t, g, doc, "page.txt", "text/plain")
	remote := mustResource(t, g, &common.Resource{
		EntityBase:      common.EntityBase{Name: "iiif"},
		ContentResource: true,
		External:        true,
		Location:        "https://iiif.example.org/letter/manifest",
	})
	if _, err := g.CreateContentRelation(context.Background(), ContentRelationParams{ForResource: doc, ContentResource: remote}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return g, doc, []int64{pdf, txt, remote}
}

func TestExport(t *testing.T) {
	g, doc, content := newExportClient(t)
	sink := &fakeSink{}

	res, err := g.Export(context.Background(), []int64{doc}, sink, nil, ExportOptions{Manifest: true, Parallel: 2})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Exported != 2 {
		t.Fatalf("expected 2 exported files, got %d", res.Exported)
	}
	if !slices.Equal(res.Skipped, []int64{content[2]}) {
		t.Fatalf("expected remote resource to be skipped, got %v", res.Skipped)
	}
	if len(sink.files) != 3 {
		t.Fatalf("expected 2 files and a manifest, got %v", sink.files)
	}

	var entries []ManifestEntry
	if err := json.Unmarshal([]byte(sink.files[ManifestName]), &entries); err != nil {
		t.Fatalf("expected valid manifest, got %v", err)
	}
	if len(entries) != 2 || entries[0].ResourceID != content[0] || entries[1].ResourceID != content[1] {
		t.Fatalf("expected manifest for %v, got %+v", content[:2], entries)
	}
	if sink.files[entries[1].Name] != "My dear Hooker" {
		t.Fatalf("expected payload under %q, got %q", entries[1].Name, sink.files[entries[1].Name])
	}
}

func TestExport_RepeatedRootsWriteOnce(t *testing.T) {
	g, doc, _ := newExportClient(t)
	sink := &fakeSink{}

	res, err := g.Export(context.Background(), []int64{doc, doc}, sink, nil, ExportOptions{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Exported != 2 || len(sink.files) != 2 {
		t.Fatalf("expected each payload once, got %d exported and %v", res.Exported, sink.files)
	}
}

func TestExport_PropagatesOpenErrors(t *testing.T) {
	g := newTestClientWith(t, memory.New(), fakePayloads{})
	doc := mustResource(t, g, &common.Resource{EntityBase: common.EntityBase{Name: "letter"}})
	mustContent(t, g, doc, "missing.pdf", "application/pdf")

	if _, err := g.Export(context.Background(), []int64{doc}, &fakeSink{}, nil, ExportOptions{}); err == nil {
		t.Fatalf("expected error for unreadable payload")
	}
}

func TestExportArchive(t *testing.T) {
	g, doc, _ := newExportClient(t)
	var buf bytes.Buffer

	res, err := g.ExportArchive(context.Background(), []int64{doc}, &buf, func(r *common.Resource) string { return "same-name" }, ExportOptions{Manifest: true})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("expected a readable archive, got %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if len(names) != 3 || names[2] != ManifestName {
		t.Fatalf("expected two payloads and a manifest, got %v", names)
	}
	if names[0] == names[1] {
		t.Fatalf("expected colliding names to be made unique, got %v", names)
	}
	if res.Exported != 2 || len(res.Skipped) != 1 {
		t.Fatalf("expected 2 exported and 1 skipped, got %+v", res)
	}
}

func TestDefaultNaming(t *testing.T) {
	tests := []struct {
		name string
		res  *common.Resource
		want string
	}{
		{name: "keeps extension", res: &common.Resource{EntityBase: common.EntityBase{ID: 7, Name: "scan.tiff"}, ContentType: "image/tiff"}, want: "7-scan.tiff"},
		{name: "adds extension", res: &common.Resource{EntityBase: common.EntityBase{ID: 8, Name: "letter"}, ContentType: "application/pdf"}, want: "8-letter.pdf"},
		{name: "sanitizes separators", res: &common.Resource{EntityBase: common.EntityBase{ID: 9, Name: "a/b:c.txt"}}, want: "9-a_b_c.txt"},
		{name: "empty name", res: &common.Resource{EntityBase: common.EntityBase{ID: 10}}, want: "10-resource"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultNaming(tt.res); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
