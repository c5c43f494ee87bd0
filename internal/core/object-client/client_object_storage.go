package objectclient

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	cfg "github.com/markdave123-py/docindex/internal/config"
	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/logging"
)

// s3API is the part of *s3.Client the object source uses.
type s3API interface {
	s3.ListObjectsV2APIClient
	manager.DownloadAPIClient
}

var _ core.ObjectClient = (*S3Client)(nil)

type S3Client struct {
	client s3API
	region string
	bucket string
	log    *logrus.Logger
}

// NewS3Client builds a client from the AWS settings. Static keys are used
// when both are set, otherwise the default credential chain applies.
func NewS3Client(ctx context.Context, cfg *cfg.Config, log *logrus.Logger) (*S3Client, error) {
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if log == nil {
		log = logging.Discard()
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AwsRegion)}
	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	log.WithField("region", cfg.AwsRegion).Debug("s3 client configured")
	return newS3Client(s3.NewFromConfig(awsCfg), cfg.AwsRegion, cfg.BucketName, log), nil
}

func newS3Client(api s3API, region, bucket string, log *logrus.Logger) *S3Client {
	return &S3Client{client: api, region: region, bucket: bucket, log: log}
}

// DefaultBucket is BUCKET_NAME, used when a command names no bucket.
func (c *S3Client) DefaultBucket() string {
	return c.bucket
}

// ListKeys returns every key under prefix, following continuation tokens.
func (c *S3Client) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var keys []string
	p := s3.NewListObjectsV2Paginator(c.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list failed: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	c.log.WithFields(logrus.Fields{"bucket": bucket, "prefix": prefix, "keys": len(keys)}).Debug("listed objects")
	return keys, nil
}

// DownloadToFile writes the object into w with the concurrent downloader.
func (c *S3Client) DownloadToFile(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	downloader := manager.NewDownloader(c.client)

	ctxGet, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	n, err := downloader.Download(ctxGet, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("s3 download failed: %w", err)
	}
	return n, nil
}
