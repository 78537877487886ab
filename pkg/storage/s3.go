package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	pkglogger "github.com/damoang/angple-rules/pkg/logger"
	"github.com/google/uuid"
)

// ObjectAPI subset of the S3 client used by S3Store
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store stores rule attachments in S3/R2/MinIO compatible storage
type S3Store struct {
	client   ObjectAPI
	bucket   string
	cdnURL   string // optional CDN base URL
	basePath string // prefix for all objects (e.g. "rules/")
}

// S3Config holds S3-compatible storage configuration
type S3Config struct {
	Endpoint        string // e.g. https://xxx.r2.cloudflarestorage.com
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	CDNURL          string
	BasePath        string
	ForcePathStyle  bool // true for MinIO/R2
}

// StoredFile result of an upload
type StoredFile struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// NewS3Store creates a new S3-compatible attachment store
func NewS3Store(cfg S3Config) *S3Store {
	opts := func(o *s3.Options) {
		o.Region = cfg.Region
		o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}

	pkglogger.GetLogger().Info().
		Str("bucket", cfg.Bucket).
		Str("endpoint", cfg.Endpoint).
		Msg("S3 storage client initialized")

	return NewS3StoreWithClient(s3.New(s3.Options{}, opts), cfg.Bucket, cfg.CDNURL, cfg.BasePath)
}

// NewS3StoreWithClient builds a store on an existing object client
func NewS3StoreWithClient(client ObjectAPI, bucket, cdnURL, basePath string) *S3Store {
	return &S3Store{
		client:   client,
		bucket:   bucket,
		cdnURL:   strings.TrimRight(cdnURL, "/"),
		basePath: basePath,
	}
}

// Upload stores data under a generated key in bucket (the default bucket when empty)
func (c *S3Store) Upload(ctx context.Context, data []byte, name, mimeType, bucket string) (*StoredFile, error) {
	if bucket == "" {
		bucket = c.bucket
	}
	key := c.basePath + GenerateKey("attachments", name)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(mimeType),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if _, err := c.client.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("s3 upload failed: %w", err)
	}

	return &StoredFile{
		URL:      c.publicURL(bucket, key),
		Filename: path.Base(key),
	}, nil
}

// Delete removes the object behind a URL returned by Upload
func (c *S3Store) Delete(ctx context.Context, url string) error {
	bucket, key, err := c.parseURL(url)
	if err != nil {
		return err
	}
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if _, err := c.client.DeleteObject(ctx, input); err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

func (c *S3Store) publicURL(bucket, key string) string {
	if c.cdnURL != "" && bucket == c.bucket {
		return c.cdnURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
}

func (c *S3Store) parseURL(url string) (bucket, key string, err error) {
	if c.cdnURL != "" && strings.HasPrefix(url, c.cdnURL+"/") {
		return c.bucket, strings.TrimPrefix(url, c.cdnURL+"/"), nil
	}
	rest, ok := strings.CutPrefix(url, "https://")
	if !ok {
		return "", "", fmt.Errorf("unrecognized storage url: %s", url)
	}
	host, key, ok := strings.Cut(rest, "/")
	if !ok || key == "" {
		return "", "", fmt.Errorf("unrecognized storage url: %s", url)
	}
	bucket, ok = strings.CutSuffix(host, ".s3.amazonaws.com")
	if !ok {
		return "", "", fmt.Errorf("unrecognized storage url: %s", url)
	}
	return bucket, key, nil
}

// GenerateKey creates a unique storage key with a date prefix
func GenerateKey(prefix, filename string) string {
	now := time.Now()
	ext := path.Ext(filename)
	return fmt.Sprintf("%s/%d/%02d/%02d/%s%s",
		prefix, now.Year(), now.Month(), now.Day(),
		uuid.NewString(), strings.ToLower(ext))
}
