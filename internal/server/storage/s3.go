// Package storage provides presigned-URL access to the S3-compatible backend
// holding large record blobs. Record payloads never transit the server in
// plaintext; clients upload and download ciphertext directly.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// BlobSigner mints presigned URLs for record blobs. The grant evaluator uses
// PresignGet; the record service uses PresignPut for uploads.
type BlobSigner interface {
	PresignPut(ctx context.Context, expires time.Duration) (key string, url string, err error)
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
}

// Seams for testing without a live S3 endpoint.
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// S3Signer implements BlobSigner against an S3-compatible endpoint (MinIO in
// development).
type S3Signer struct {
	user         string
	password     string
	bucket       string
	region       string
	baseEndpoint string
}

func NewS3Signer(user, password, bucket, region, baseEndpoint string) *S3Signer {
	return &S3Signer{
		user:         user,
		password:     password,
		bucket:       bucket,
		region:       region,
		baseEndpoint: baseEndpoint,
	}
}

// RandomStorageKey places blobs under a date-sharded prefix.
func RandomStorageKey(now time.Time) string {
	return fmt.Sprintf("records/%d/%d/%d/%v", now.Year(), now.Month(), now.Day(), uuid.New())
}

func (s *S3Signer) presignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(s.user, s.password, "")))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.baseEndpoint)
	})

	return newS3PresignClient(client), nil
}

func (s *S3Signer) PresignPut(ctx context.Context, expires time.Duration) (string, string, error) {
	pc, err := s.presignClient(ctx)
	if err != nil {
		return "", "", err
	}

	key := RandomStorageKey(time.Now())
	req, err := presignPutObject(pc, ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", "", err
	}

	return key, req.URL, nil
}

func (s *S3Signer) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	pc, err := s.presignClient(ctx)
	if err != nil {
		return "", err
	}

	req, err := presignGetObject(pc, ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
