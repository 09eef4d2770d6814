package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/OFFIS-RIT/amphora/backend/internal/util"
	"github.com/OFFIS-RIT/amphora/backend/pkg/common"
	"github.com/OFFIS-RIT/amphora/backend/pkg/graph"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the part of *s3.Client the payload store uses.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

func NewS3Client(ctx context.Context) (*s3.Client, error) {
	region := util.GetEnv("AWS_REGION")
	endpoint := util.GetEnv("AWS_ENDPOINT")
	accessKey := util.GetEnv("AWS_ACCESS_KEY")
	secretKey := util.GetEnv("AWS_SECRET_KEY")

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(endpoint))
	}
	if accessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), nil
}

// S3PayloadStore reads content resource payloads by file key and receives
// exported files under Prefix.
type S3PayloadStore struct {
	client s3API
	bucket string
	prefix string
}

var (
	_ graph.PayloadSource = (*S3PayloadStore)(nil)
	_ graph.PayloadSink   = (*S3PayloadStore)(nil)
)

type NewS3PayloadStoreParams struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

func NewS3PayloadStore(params NewS3PayloadStoreParams) (*S3PayloadStore, error) {
	if params.Client == nil {
		return nil, errors.New("s3 client is required")
	}
	return newS3PayloadStore(params.Client, params.Bucket, params.Prefix)
}

func newS3PayloadStore(client s3API, bucket, prefix string) (*S3PayloadStore, error) {
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &S3PayloadStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// WithPrefix returns a store writing to the same bucket under prefix.
func (s *S3PayloadStore) WithPrefix(prefix string) *S3PayloadStore {
	return &S3PayloadStore{client: s.client, bucket: s.bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3PayloadStore) key(name string) string {
	return ObjectKey(s.prefix, name)
}

// ObjectKey places name below prefix, the way a store built WithPrefix does.
func ObjectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// Open streams the stored payload of res. Resources without a file key and
// keys missing from the bucket report graph.ErrNoPayload.
func (s *S3PayloadStore) Open(ctx context.Context, res *common.Resource) (io.ReadCloser, error) {
	if res.FileKey == "" {
		return nil, fmt.Errorf("resource %d: %w", res.ID, graph.ErrNoPayload)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(res.FileKey),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("resource %d key %s: %w", res.ID, res.FileKey, graph.ErrNoPayload)
		}
		return nil, fmt.Errorf("failed to get file from S3: %w", err)
	}
	return out.Body, nil
}

// Put uploads body under the store prefix. The body is spooled to a
// temporary file first because signed uploads need a seekable body.
func (s *S3PayloadStore) Put(ctx context.Context, name string, body io.Reader, contentType string) error {
	tmp, err := os.CreateTemp("", "amphora-upload-*")
	if err != nil {
		return fmt.Errorf("failed to create spool file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, body)
	if err != nil {
		return fmt.Errorf("failed to spool %s: %w", name, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}

	return s.PutFile(ctx, name, tmp, size, contentType)
}

// PutFile uploads an already seekable body of known size.
func (s *S3PayloadStore) PutFile(ctx context.Context, name string, file io.ReadSeeker, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(name)),
		Body:          file,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload file to S3: %w", err)
	}
	return nil
}

func (s *S3PayloadStore) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}

// GenerateDownloadLink presigns a GET for key against publicEndpoint, so that
// the signature matches the host the client will use.
func GenerateDownloadLink(ctx context.Context, baseClient *s3.Client, bucket, key, publicEndpoint string) (string, error) {
	publicURL, err := url.Parse(publicEndpoint)
	if err != nil || publicURL.Scheme == "" || publicURL.Host == "" {
		return "", fmt.Errorf("invalid public endpoint: %s", publicEndpoint)
	}
	prefix := strings.TrimSuffix(publicURL.Path, "/")
	publicBaseEndpoint := fmt.Sprintf("%s://%s", publicURL.Scheme, publicURL.Host)

	presignClient := s3.NewFromConfig(
		aws.Config{
			Region:      baseClient.Options().Region,
			Credentials: baseClient.Options().Credentials,
			HTTPClient:  baseClient.Options().HTTPClient,
		},
		func(o *s3.Options) {
			o.BaseEndpoint = aws.String(publicBaseEndpoint)
			o.UsePathStyle = true
		},
	)

	out, err := s3.NewPresignClient(presignClient).PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		},
		s3.WithPresignExpires(15*time.Minute),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate download link: %w", err)
	}

	if prefix != "" {
		signedURL, err := url.Parse(out.URL)
		if err != nil {
			return "", fmt.Errorf("failed to parse presigned url: %w", err)
		}
		signedURL.Path = prefix + signedURL.Path
		return signedURL.String(), nil
	}
	return out.URL, nil
}
