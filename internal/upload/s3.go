package upload

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/config"
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader writes images straight to a bucket that is served publicly.
type S3Uploader struct {
	client     objectPutter
	bucket     string
	prefix     string
	publicBase string
}

func NewS3Uploader(ctx context.Context, cfg config.S3Config) (*S3Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if id, secret := os.Getenv(config.EnvS3AccessKey), os.Getenv(config.EnvS3SecretKey); id != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(id, secret, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Uploader(client, cfg), nil
}

func newS3Uploader(client objectPutter, cfg config.S3Config) *S3Uploader {
	base := cfg.PublicBase
	if base == "" {
		if cfg.Endpoint != "" {
			base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		} else {
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	return &S3Uploader{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		publicBase: strings.TrimRight(base, "/"),
	}
}

// Key is where an image for the post slug is stored.
func (u *S3Uploader) Key(f api.File, slug string) string {
	dir := strings.Trim(u.prefix, "/")
	if slug != "" {
		dir += "/" + slug
	}
	name := uuid.New().String() + Extension(f.ContentType)
	return strings.TrimPrefix(dir+"/"+name, "/")
}

func (u *S3Uploader) Upload(ctx context.Context, f api.File, slug string) (string, error) {
	key := u.Key(f, slug)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(f.Data),
		ContentType:   aws.String(f.ContentType),
		ContentLength: aws.Int64(int64(len(f.Data))),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", u.bucket, key, err)
	}
	uploadLogger.Debug().Str("bucket", u.bucket).Str("key", key).Int("bytes", len(f.Data)).Msg("Image stored")
	return u.publicBase + "/" + key, nil
}
