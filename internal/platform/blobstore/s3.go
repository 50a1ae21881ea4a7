package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

var sseAlgorithm = "AES256"

type S3Options struct {
	Bucket   string
	Region   string
	Endpoint string // S3-compatible endpoint (MinIO, localstack); empty for AWS
	MaxSize  int64
	// Credentials overrides the default provider chain.
	Credentials *credentials.Credentials
}

// S3Store keeps blobs in an S3 bucket with server-side encryption.
type S3Store struct {
	s3      *s3.S3
	bucket  string
	maxSize int64
}

func NewS3Store(opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	cfg := aws.NewConfig().WithRegion(opts.Region)
	if opts.Endpoint != "" {
		cfg = cfg.WithEndpoint(opts.Endpoint).WithS3ForcePathStyle(true)
	}
	if opts.Credentials != nil {
		cfg = cfg.WithCredentials(opts.Credentials)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return &S3Store{
		s3:      s3.New(sess),
		bucket:  opts.Bucket,
		maxSize: opts.MaxSize,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, content io.Reader, contentType string) (*Object, error) {
	if !validKey(key) {
		return nil, ErrInvalidKey
	}
	data, err := readAll(content, s.maxSize)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	size := int64(len(data))
	hash := hashOf(data)
	_, err = s.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:               &s.bucket,
		Key:                  &key,
		Body:                 bytes.NewReader(data),
		ContentLength:        &size,
		ContentType:          &contentType,
		ServerSideEncryption: &sseAlgorithm,
		Metadata:             map[string]*string{"Sha256": aws.String(hash)},
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put %s: %w", key, err)
	}

	return &Object{
		Key:         key,
		ContentType: contentType,
		Size:        size,
		Hash:        hash,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, *Object, error) {
	out, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("s3 get %s: %w", key, err)
	}

	obj := &Object{
		Key:         key,
		ContentType: aws.StringValue(out.ContentType),
		Size:        aws.Int64Value(out.ContentLength),
		CreatedAt:   aws.TimeValue(out.LastModified),
	}
	if h, ok := out.Metadata["Sha256"]; ok {
		obj.Hash = aws.StringValue(h)
	}
	return out.Body, obj, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.s3.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode() == http.StatusNotFound
	}
	return false
}
