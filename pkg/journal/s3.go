package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/snappy"
)

const s3Suffix = ".json.sz"

// S3API is the subset of the S3 client the journal uses
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Options locates the bucket
type S3Options struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3 writes one snappy-compressed JSON object per event
type S3 struct {
	client S3API
	bucket string
	prefix string
}

// NewS3 wraps an existing client
func NewS3(client S3API, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

// OpenS3 builds a client from the default AWS chain. Static keys, when given,
// override the chain; a custom endpoint switches to path-style addressing for
// S3-compatible stores.
func OpenS3(ctx context.Context, opts S3Options) (*S3, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3(client, opts.Bucket, opts.Prefix), nil
}

func (s *S3) key(ev Event) string {
	return s.prefix + sortKey(ev) + s3Suffix
}

func (s *S3) Append(ctx context.Context, ev Event) error {
	ev = prepare(ev)
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(s.key(ev)),
		Body:            bytes.NewReader(snappy.Encode(nil, data)),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("snappy"),
	})
	if err != nil {
		return fmt.Errorf("put event %s: %w", ev.ID, err)
	}
	return nil
}

func (s *S3) List(ctx context.Context, limit int) ([]Event, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		for _, obj := range page.Contents {
			if k := aws.ToString(obj.Key); strings.HasSuffix(k, s3Suffix) {
				keys = append(keys, k)
			}
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]Event, 0, len(keys))
	for _, k := range keys {
		ev, err := s.get(ctx, k)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *S3) get(ctx context.Context, key string) (Event, error) {
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Event{}, fmt.Errorf("get event %s: %w", key, err)
	}
	defer obj.Body.Close()

	compressed, err := io.ReadAll(obj.Body)
	if err != nil {
		return Event{}, fmt.Errorf("read event %s: %w", key, err)
	}
	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return Event{}, fmt.Errorf("decompress event %s: %w", key, err)
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event %s: %w", key, err)
	}
	return ev, nil
}

func (s *S3) Close() error {
	return nil
}
