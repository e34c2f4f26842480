package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Options selects the AWS credential chain settings. Empty values fall back
// to the SDK defaults.
type S3Options struct {
	Region       string
	Profile      string
	UsePathStyle bool
}

// S3API is the subset of the S3 client the backends call.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client loads the default AWS configuration with optional overrides.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.UsePathStyle
	}), nil
}

// S3Destination uploads audio objects under a key prefix.
type S3Destination struct {
	api     S3API
	bucket  string
	prefix  string
	baseURL string
}

// NewS3Destination returns a destination in bucket. When publicBaseURL is
// empty, URIs use the bucket's virtual-hosted endpoint.
func NewS3Destination(api S3API, bucket, prefix, publicBaseURL, region string) *S3Destination {
	base := strings.TrimRight(publicBaseURL, "/")
	if base == "" {
		host := bucket + ".s3.amazonaws.com"
		if region != "" {
			host = bucket + ".s3." + region + ".amazonaws.com"
		}
		base = "https://" + host
	}
	return &S3Destination{api: api, bucket: bucket, prefix: prefix, baseURL: base}
}

func (d *S3Destination) Put(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	key := objectKey(d.prefix, name)
	in := &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(audioContentType),
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := d.api.PutObject(ctx, in); err != nil {
		return "", classifyS3("s3 put", err)
	}
	return d.baseURL + "/" + escapeKey(key), nil
}

// S3Feed keeps the feed document in one object.
type S3Feed struct {
	api    S3API
	bucket string
	key    string
}

func NewS3Feed(api S3API, bucket, key string) *S3Feed {
	return &S3Feed{api: api, bucket: bucket, key: key}
}

func (f *S3Feed) Get(ctx context.Context) ([]byte, error) {
	out, err := f.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, classifyS3("s3 feed read", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, classifyTransport("s3 feed read", err)
	}
	return data, nil
}

func (f *S3Feed) Put(ctx context.Context, data []byte) error {
	_, err := f.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(f.bucket),
		Key:           aws.String(f.key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(feedContentType),
		CacheControl:  aws.String("no-cache"),
	})
	if err != nil {
		return classifyS3("s3 feed write", err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func classifyS3(op string, err error) error {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return classifyStatus(respErr.HTTPStatusCode(), op, err)
	}
	return classifyTransport(op, err)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
