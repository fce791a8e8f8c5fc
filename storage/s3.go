package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"studio_engine/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3API is the subset of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type StorageService struct {
	s3Client S3API
	bucket   string
}

// NewStorageService creates a new storage service from the default AWS credential chain
func NewStorageService(ctx context.Context, region, bucket string) (*StorageService, error) {
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is not configured")
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %v", err)
	}
	return &StorageService{s3Client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// NewStorageServiceWithClient wires an existing client (tests, custom endpoints).
func NewStorageServiceWithClient(client S3API, bucket string) *StorageService {
	return &StorageService{s3Client: client, bucket: bucket}
}

// PutObject uploads body under key
func (s *StorageService) PutObject(ctx context.Context, key string, body []byte) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(getContentType(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %v", err)
	}
	return nil
}

// GetObject downloads the object stored under key
func (s *StorageService) GetObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %v", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// ReportKey builds a unique object key for an exported report workbook.
func ReportKey(key models.PeriodKey) string {
	return fmt.Sprintf("reports/%d/%02d/%s/%s.xlsx", key.Year, key.Month, key.ReportType, uuid.New().String())
}

// getContentType returns the MIME type for the key's extension
func getContentType(key string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(key), ".")) {
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "json":
		return "application/json"
	case "zip":
		return "application/zip"
	case "pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
