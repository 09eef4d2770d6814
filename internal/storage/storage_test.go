package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/graph"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	objects      map[string][]byte
	contentTypes map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != aws.ToInt64(in.ContentLength) {
		return nil, errors.New("content length mismatch")
	}
	key := aws.ToString(in.Key)
	f.objects[key] = data
	f.contentTypes[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3PayloadStoreOpen(t *testing.T) {
	fake := newFakeS3()
	fake.objects["files/a.txt"] = []byte("hello")
	st, err := newS3PayloadStore(fake, "bucket", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	rc, err := st.Open(ctx, &common.Resource{FileKey: "files/a.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", data)
	}

	tests := []struct {
		name string
		res  *common.Resource
	}{
		{"no file key", &common.Resource{Location: "https://example.org/a.txt"}},
		{"missing key", &common.Resource{FileKey: "files/gone.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := st.Open(ctx, tt.res); !errors.Is(err, graph.ErrNoPayload) {
				t.Fatalf("expected ErrNoPayload, got %v", err)
			}
		})
	}
}

func TestS3PayloadStorePutAndDelete(t *testing.T) {
	fake := newFakeS3()
	base, err := newS3PayloadStore(fake, "bucket", "exports/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := base.WithPrefix("exports/job-1")
	ctx := context.Background()

	if err := st.Put(ctx, "1-letter.pdf", bytes.NewBufferString("pdf"), "application/pdf"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := string(fake.objects["exports/job-1/1-letter.pdf"]); got != "pdf" {
		t.Fatalf("expected uploaded payload, got %q", got)
	}
	if got := fake.contentTypes["exports/job-1/1-letter.pdf"]; got != "application/pdf" {
		t.Fatalf("expected content type application/pdf, got %q", got)
	}

	if err := st.Delete(ctx, "1-letter.pdf"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.objects) != 0 {
		t.Fatalf("expected object to be deleted, got %v", fake.objects)
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix string
		name   string
		want   string
	}{
		{prefix: "", name: "exports/a.zip", want: "exports/a.zip"},
		{prefix: "archives", name: "exports/a.zip", want: "archives/exports/a.zip"},
		{prefix: "/archives/", name: "exports/a.zip", want: "archives/exports/a.zip"},
	}
	for _, tt := range tests {
		if got := ObjectKey(tt.prefix, tt.name); got != tt.want {
			t.Fatalf("expected %q, got %q", tt.want, got)
		}
	}

	fake := newFakeS3()
	base, err := newS3PayloadStore(fake, "bucket", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := base.WithPrefix("archives")
	body := bytes.NewReader([]byte("zip"))
	if err := st.PutFile(context.Background(), "exports/a.zip", body, 3, "application/zip"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := fake.objects[ObjectKey("archives", "exports/a.zip")]; !ok {
		t.Fatalf("expected archive under the prefix, got %v", fake.objects)
	}
}

func TestNewS3PayloadStoreRequiresBucket(t *testing.T) {
	if _, err := newS3PayloadStore(newFakeS3(), "", ""); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
}

func TestFilePayloadStore(t *testing.T) {
	root := t.TempDir()
	st := NewFilePayloadStore(root)
	ctx := context.Background()

	if err := st.Put(ctx, "files/a.txt", bytes.NewBufferString("hello"), "text/plain"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "files", "a.txt")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	rc, err := st.Open(ctx, &common.Resource{FileKey: "files/a.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", data)
	}

	if _, err := st.Open(ctx, &common.Resource{FileKey: "files/missing.txt"}); !errors.Is(err, graph.ErrNoPayload) {
		t.Fatalf("expected ErrNoPayload, got %v", err)
	}
}

func TestFilePayloadStoreStaysBelowRoot(t *testing.T) {
	root := t.TempDir()
	st := NewFilePayloadStore(filepath.Join(root, "payloads"))

	if err := st.Put(context.Background(), "../../escape.txt", bytes.NewBufferString("x"), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.txt")); err == nil {
		t.Fatalf("expected write to stay below root")
	}
	if _, err := os.Stat(filepath.Join(root, "payloads", "escape.txt")); err != nil {
		t.Fatalf("expected cleaned path below root: %v", err)
	}
}
