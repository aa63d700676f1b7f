// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/s3client"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

func init() {
	Register(types.StorageTypeS3, NewS3)
}

// S3 implements ObjectStore for S3-compatible storage (AWS S3, Cloudflare R2, MinIO)
type S3 struct {
	client *s3.Client
	bucket string
	now    func() time.Time
}

// NewS3 creates an S3 backend using a client from the shared pool
func NewS3(cfg types.BackendConfig) (types.ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket required for S3 backend")
	}

	client, err := s3client.Default().GetClient(context.Background(), &s3client.Config{
		Endpoint:        cfg.Endpoint,
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKey,
		SecretAccessKey: cfg.SecretKey,
		PathStyle:       cfg.PathStyle,
	})
	if err != nil {
		return nil, err
	}

	return NewS3WithClient(client, cfg.Bucket), nil
}

// NewS3WithClient wraps an existing client
func NewS3WithClient(client *s3.Client, bucket string) *S3 {
	return &S3{client: client, bucket: bucket, now: time.Now}
}

func (s *S3) Type() types.StorageType {
	return types.StorageTypeS3
}

func (s *S3) Head(ctx context.Context, key string) (*types.ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrapErr("head object", key, err)
	}

	return &types.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         aws.ToString(out.ETag),
		LastModified: aws.ToTime(out.LastModified),
		Uploaded:     aws.ToTime(out.LastModified),
		HTTPMetadata: types.HTTPMetadata{
			ContentType:        aws.ToString(out.ContentType),
			ContentLanguage:    aws.ToString(out.ContentLanguage),
			ContentDisposition: aws.ToString(out.ContentDisposition),
			ContentEncoding:    aws.ToString(out.ContentEncoding),
			CacheControl:       aws.ToString(out.CacheControl),
			CacheExpiry:        parseExpires(out.ExpiresString),
		},
		Metadata: maps.Clone(out.Metadata),
	}, nil
}

func (s *S3) Get(ctx context.Context, key string, rng *types.ByteRange) (*types.Object, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if rng != nil {
		header, err := rangeHeader(rng)
		if err != nil {
			return nil, err
		}
		in.Range = aws.String(header)
	}

	out, err := s.client.GetObject(ctx, in)
	if err != nil {
		return nil, s.wrapErr("get object", key, err)
	}

	length := aws.ToInt64(out.ContentLength)
	size := length
	if total, ok := parseContentRangeTotal(aws.ToString(out.ContentRange)); ok {
		size = total
	}

	return &types.Object{
		Info: types.ObjectInfo{
			Key:          key,
			Size:         size,
			ETag:         aws.ToString(out.ETag),
			LastModified: aws.ToTime(out.LastModified),
			Uploaded:     aws.ToTime(out.LastModified),
			HTTPMetadata: types.HTTPMetadata{
				ContentType:        aws.ToString(out.ContentType),
				ContentLanguage:    aws.ToString(out.ContentLanguage),
				ContentDisposition: aws.ToString(out.ContentDisposition),
				ContentEncoding:    aws.ToString(out.ContentEncoding),
				CacheControl:       aws.ToString(out.CacheControl),
				CacheExpiry:        parseExpires(out.ExpiresString),
			},
			Metadata: maps.Clone(out.Metadata),
		},
		Body:   out.Body,
		Length: length,
	}, nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]types.ObjectInfo, error) {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}

	var out []types.ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, in)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.wrapErr("list objects", prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, types.ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         aws.ToString(obj.ETag),
				LastModified: aws.ToTime(obj.LastModified),
				Uploaded:     aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

// Put streams body with a declared Content-Length. The payload is sent
// unsigned so the SDK never has to buffer or seek the body to hash it.
func (s *S3) Put(ctx context.Context, key string, body io.Reader, size int64, opts types.PutOptions) (*types.ObjectInfo, error) {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		Metadata:      opts.Metadata,
	}
	hm := opts.HTTPMetadata
	if hm.ContentType != "" {
		in.ContentType = aws.String(hm.ContentType)
	}
	if hm.ContentLanguage != "" {
		in.ContentLanguage = aws.String(hm.ContentLanguage)
	}
	if hm.ContentDisposition != "" {
		in.ContentDisposition = aws.String(hm.ContentDisposition)
	}
	if hm.ContentEncoding != "" {
		in.ContentEncoding = aws.String(hm.ContentEncoding)
	}
	if hm.CacheControl != "" {
		in.CacheControl = aws.String(hm.CacheControl)
	}
	if hm.CacheExpiry != nil {
		in.Expires = aws.Time(*hm.CacheExpiry)
	}

	out, err := s.client.PutObject(ctx, in, s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware))
	if err != nil {
		return nil, s.wrapErr("put object", key, err)
	}

	// PutObject only echoes the ETag; the rest is what was accepted
	now := s.now().UTC()
	return &types.ObjectInfo{
		Key:          key,
		Size:         size,
		ETag:         aws.ToString(out.ETag),
		LastModified: now,
		Uploaded:     now,
		HTTPMetadata: hm,
		Metadata:     maps.Clone(opts.Metadata),
	}, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s.wrapErr("delete object", key, err)
	}
	return nil
}

func (s *S3) Close() error {
	return nil
}

// wrapErr maps missing-object responses to types.NotFoundError and wraps
// everything else with the failing operation.
func (s *S3) wrapErr(op, key string, err error) error {
	if isNotFoundError(err) {
		return fmt.Errorf("%s: %w", op, &types.NotFoundError{Key: key})
	}
	return fmt.Errorf("%s %s/%s: %w", op, s.bucket, key, err)
}

// isNotFoundError returns true if the error indicates the object doesn't exist.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}

	// HEAD responses carry no body, so only the status code is left
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		var bucketErr *s3types.NoSuchBucket
		return !errors.As(err, &bucketErr)
	}
	return false
}

// rangeHeader renders a backend range as an HTTP Range header value.
func rangeHeader(rng *types.ByteRange) (string, error) {
	switch rng.Mode {
	case types.RangeOffsetLength:
		return fmt.Sprintf("bytes=%d-%d", rng.Offset, rng.Offset+rng.Length-1), nil
	case types.RangeOffset:
		return fmt.Sprintf("bytes=%d-", rng.Offset), nil
	case types.RangeSuffix:
		return fmt.Sprintf("bytes=-%d", rng.Length), nil
	default:
		return "", fmt.Errorf("%w: unknown mode %s", ErrInvalidRange, rng.Mode)
	}
}

// parseContentRangeTotal extracts the complete length from a Content-Range
// value such as "bytes 6-10/11". It returns false when the total is absent
// or unknown ("*").
func parseContentRangeTotal(v string) (int64, bool) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 || i == len(v)-1 {
		return 0, false
	}
	total, err := strconv.ParseInt(v[i+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

// parseExpires parses the raw Expires header; invalid values are dropped.
func parseExpires(v *string) *time.Time {
	if v == nil || *v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC1123, *v)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
