package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/dmarwaha/release-relay/pkg/models"
)

// Default timeout for short s3 control operations.
const DefaultS3Timeout = 30 * time.Second

// Lifetime of the presigned download links handed back after upload.
const presignLifetime = 24 * time.Hour

// S3Store keeps assets as objects in a single bucket.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func NewS3(ctx context.Context, bucket, region string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	client := s3.NewFromConfig(cfg)
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
	}, nil
}

func (s *S3Store) Upload(ctx context.Context, localPath, assetName string, onProgress ProgressFunc, cancel CancelCheck) (models.AssetInfo, error) {
	ctx, span := tracer.Start(ctx, "store.s3_upload")
	defer span.End()

	f, err := os.Open(localPath)
	if err != nil {
		return models.AssetInfo{}, fmt.Errorf("%w: opening %s: %v", models.ErrUploadFailed, localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return models.AssetInfo{}, fmt.Errorf("%w: %v", models.ErrUploadFailed, err)
	}
	size := info.Size()

	body := &progressReader{f: f, total: size, onProgress: onProgress, cancel: cancel}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(assetName),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		if cancel != nil {
			if cerr := cancel(); cerr != nil {
				return models.AssetInfo{}, cerr
			}
		}
		return models.AssetInfo{}, fmt.Errorf("%w: %v", models.ErrUploadFailed, err)
	}

	publicURL, err := s.downloadURL(ctx, assetName)
	if err != nil {
		return models.AssetInfo{}, err
	}
	return models.AssetInfo{Name: assetName, Size: size, PublicURL: publicURL}, nil
}

func (s *S3Store) List(ctx context.Context) ([]models.AssetInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultS3Timeout)
	defer cancel()

	var all []models.AssetInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
		for _, obj := range page.Contents {
			all = append(all, models.AssetInfo{
				Name: aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	return all, nil
}

func (s *S3Store) Delete(ctx context.Context, assetName string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultS3Timeout)
	defer cancel()

	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(assetName),
	}); err != nil {
		return fmt.Errorf("%w: %s", models.ErrAssetNotFound, assetName)
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(assetName),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *S3Store) Rename(ctx context.Context, oldName, newName string) (models.AssetInfo, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(oldName),
	})
	if err != nil {
		return models.AssetInfo{}, fmt.Errorf("%w: %s", models.ErrAssetNotFound, oldName)
	}

	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + oldName),
		Key:        aws.String(newName),
	})
	if err != nil {
		return models.AssetInfo{}, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if err := s.Delete(ctx, oldName); err != nil && !errors.Is(err, models.ErrAssetNotFound) {
		return models.AssetInfo{}, err
	}

	publicURL, err := s.downloadURL(ctx, newName)
	if err != nil {
		return models.AssetInfo{}, err
	}
	return models.AssetInfo{Name: newName, Size: aws.ToInt64(head.ContentLength), PublicURL: publicURL}, nil
}

func (s *S3Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultS3Timeout)
	defer cancel()
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *S3Store) downloadURL(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = presignLifetime
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign request: %w", err)
	}
	return req.URL, nil
}
