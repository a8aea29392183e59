// Package s3 implements RemoteStore on top of S3-compatible object
// storage (AWS S3, MinIO, etc.). Items live under
// <prefix>items/<id>/meta.json, chunks under <prefix>items/<id>/chunks/<n>.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/iudanet/confsync/internal/models"
	"github.com/iudanet/confsync/internal/storage"
)

// Config configures the S3 remote store.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string // for S3-compatible services (MinIO, etc.)
	// AccessKeyID for authentication. Prefer IAM roles, instance profiles,
	// or environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
	// over setting these directly.
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string // key prefix for all objects
	UsePathStyle    bool
}

// Store implements storage.RemoteStore over an S3 bucket.
type Store struct {
	client *awss3.Client
	cfg    Config
}

// New creates an S3 remote store. The client is built eagerly;
// network access happens on Connect/TestConnection and the data calls.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*awss3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return &Store{
		client: awss3.NewFromConfig(awsCfg, s3Opts...),
		cfg:    cfg,
	}, nil
}

func (s *Store) metaKey(itemID string) string {
	return fmt.Sprintf("%sitems/%s/meta.json", s.cfg.Prefix, itemID)
}

func (s *Store) chunkKey(itemID string, chunkIndex int) string {
	return fmt.Sprintf("%sitems/%s/chunks/%06d", s.cfg.Prefix, itemID, chunkIndex)
}

// Connect verifies the bucket is reachable.
func (s *Store) Connect(ctx context.Context) error {
	return s.TestConnection(ctx)
}

// Disconnect is a no-op: the S3 client holds no persistent connection.
func (s *Store) Disconnect(_ context.Context) error {
	return nil
}

// TestConnection heads the bucket.
func (s *Store) TestConnection(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(s.cfg.Bucket),
	})
	if err != nil {
		return fmt.Errorf("S3 head bucket failed: %w", err)
	}
	return nil
}

func (s *Store) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("S3 put object failed: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("S3 read body failed: %w", err)
	}
	return data, nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "404")
}

// UploadChunk stores one payload chunk as an object.
func (s *Store) UploadChunk(ctx context.Context, itemID string, chunkIndex int, data []byte) error {
	return s.put(ctx, s.chunkKey(itemID, chunkIndex), data)
}

// DownloadChunk retrieves one payload chunk.
func (s *Store) DownloadChunk(ctx context.Context, itemID string, chunkIndex int) ([]byte, error) {
	data, err := s.get(ctx, s.chunkKey(itemID, chunkIndex))
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrChunkNotFound
		}
		return nil, fmt.Errorf("S3 get chunk failed: %w", err)
	}
	return data, nil
}

// UploadMetadata stores the item's metadata record.
func (s *Store) UploadMetadata(ctx context.Context, itemID string, item *models.SyncItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	return s.put(ctx, s.metaKey(itemID), data)
}

// DownloadMetadata retrieves the item's metadata record.
func (s *Store) DownloadMetadata(ctx context.Context, itemID string) (*models.SyncItem, error) {
	data, err := s.get(ctx, s.metaKey(itemID))
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrItemNotFound
		}
		return nil, fmt.Errorf("S3 get metadata failed: %w", err)
	}

	item := &models.SyncItem{}
	if err := json.Unmarshal(data, item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return item, nil
}

// List returns metadata of all items of the given type, paging through
// the bucket listing.
func (s *Store) List(ctx context.Context, itemType string) ([]*models.SyncItem, error) {
	prefix := s.cfg.Prefix + "items/"

	var items []*models.SyncItem
	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("S3 list objects failed: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, "/meta.json") {
				continue
			}

			data, err := s.get(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("S3 get metadata failed: %w", err)
			}
			item := &models.SyncItem{}
			if err := json.Unmarshal(data, item); err != nil {
				return nil, fmt.Errorf("failed to unmarshal item: %w", err)
			}
			if itemType == "" || item.Type == itemType {
				items = append(items, item)
			}
		}
	}
	return items, nil
}

// Delete removes an item's metadata and all its chunks.
func (s *Store) Delete(ctx context.Context, itemID string) error {
	prefix := fmt.Sprintf("%sitems/%s/", s.cfg.Prefix, itemID)

	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("S3 list objects failed: %w", err)
		}
		for _, obj := range page.Contents {
			_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
				Bucket: aws.String(s.cfg.Bucket),
				Key:    obj.Key,
			})
			if err != nil {
				return fmt.Errorf("S3 delete object failed: %w", err)
			}
		}
	}
	return nil
}
