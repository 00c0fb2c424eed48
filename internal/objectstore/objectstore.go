// Package objectstore is a thin wrapper over aws-sdk-go-v2's S3 client:
// listing and downloading the compressed MemDB objects the sync loop
// reconciles the stash against.
package objectstore

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/coresymbols/symd/internal/errs"
	"github.com/coresymbols/symd/internal/interfaces"
)

// Store lists and downloads objects from one S3 bucket.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// Params configures a Store. Region is required; AccessKey/SecretKey are
// optional — when absent, the SDK's default provider chain (env vars,
// shared config, instance role) is used instead.
type Params struct {
	BucketURL string // "s3://bucket/optional/prefix"
	Region    string
	AccessKey string
	SecretKey string
}

// New builds a Store from Params, resolving bucket/prefix from the
// "s3://" URL and wiring static credentials ahead of the default chain
// when both key fields are set.
func New(ctx context.Context, p Params) (*Store, error) {
	bucket, prefix, err := parseBucketURL(p.BucketURL)
	if err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(p.Region))
	if p.AccessKey != "" && p.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(p.AccessKey, p.SecretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errs.Wrap("objectstore.New", errs.CodeRemoteUnavailable, err)
	}

	return &Store{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}, nil
}

func parseBucketURL(raw string) (bucket, prefix string, err error) {
	const schemePrefix = "s3://"
	if !strings.HasPrefix(raw, schemePrefix) {
		return "", "", errs.New("objectstore.parseBucketURL", errs.CodeBadConfig, "bucket_url must use the s3:// scheme")
	}
	rest := strings.TrimPrefix(raw, schemePrefix)
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i], strings.TrimSuffix(rest[i+1:], "/"), nil
	}
	return rest, "", nil
}

// List returns every object under the bucket's configured prefix joined
// with extraPrefix.
func (s *Store) List(ctx context.Context, extraPrefix string) ([]interfaces.ObjectEntry, error) {
	fullPrefix := s.prefix
	if extraPrefix != "" {
		fullPrefix = strings.TrimSuffix(fullPrefix, "/") + "/" + extraPrefix
	}

	var entries []interfaces.ObjectEntry
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errs.Wrap("objectstore.List", errs.CodeRemoteUnavailable, err)
		}
		for _, obj := range page.Contents {
			entries = append(entries, interfaces.ObjectEntry{
				Key:  aws.ToString(obj.Key),
				ETag: strings.Trim(aws.ToString(obj.ETag), `"`),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	return entries, nil
}

// Get streams the body of one object.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errs.Wrap("objectstore.Get", errs.CodeRemoteUnavailable, err)
	}
	return out.Body, nil
}

var _ interfaces.ObjectReader = (*Store)(nil)
