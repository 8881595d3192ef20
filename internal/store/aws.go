package store

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/samber/do"

	"ghiblify/internal/log"
)

// S3Store persists artifacts to a public-read bucket, resolving URLs
// through the CDN domain when one is configured.
type S3Store struct {
	Client  *s3.Client
	Bucket  string
	BaseURL string
}

func NewS3Store(i *do.Injector) (Store, error) {
	bucket := do.MustInvokeNamed[string](i, "bucket")
	base := do.MustInvokeNamed[string](i, "cdn_base_url")
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.amazonaws.com", bucket)
	}
	return &S3Store{
		Client:  do.MustInvoke[*s3.Client](i),
		Bucket:  bucket,
		BaseURL: base,
	}, nil
}

func (s *S3Store) Persist(ctx context.Context, params Params) (string, error) {
	name := newObjectName(params.ContentType)
	logger := log.FromContextOrDiscard(ctx).WithGroup("s3 store").With(
		"name", name,
		"content-type", params.ContentType,
		"bucket", s.Bucket,
	)
	logger.Info("uploading artifact")

	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.Bucket),
		Key:          aws.String(name),
		ContentType:  aws.String(params.ContentType),
		Body:         bytes.NewReader(params.Data),
		Metadata:     params.Metadata,
		ACL:          s3types.ObjectCannedACLPublicRead,
		StorageClass: s3types.StorageClassIntelligentTiering,
	})
	if err != nil {
		return "", fmt.Errorf("uploading artifact to s3: %w", err)
	}
	return strings.TrimSuffix(s.BaseURL, "/") + "/" + name, nil
}

func (s *S3Store) Owns(url string) bool {
	return strings.HasPrefix(url, strings.TrimSuffix(s.BaseURL, "/")+"/")
}

func (s *S3Store) Remove(ctx context.Context, url string) error {
	name := path.Base(url)
	log.FromContextOrDiscard(ctx).WithGroup("s3 store").Info("removing artifact",
		"name", name, "bucket", s.Bucket)

	_, err := s.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(name),
	})
	return err
}

type CloudFrontInvalidator struct {
	Client       *cloudfront.Client
	Distribution string
}

func NewCloudFrontInvalidator(i *do.Injector) (Invalidator, error) {
	return &CloudFrontInvalidator{
		Client:       do.MustInvoke[*cloudfront.Client](i),
		Distribution: do.MustInvokeNamed[string](i, "distribution"),
	}, nil
}

func (i *CloudFrontInvalidator) Invalidate(ctx context.Context, paths []string) error {
	log.FromContextOrDiscard(ctx).WithGroup("cloudfront").Info("invalidating paths",
		"paths", paths, "distribution", i.Distribution)

	_, err := i.Client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(i.Distribution),
		InvalidationBatch: &cftypes.InvalidationBatch{
			CallerReference: aws.String(time.Now().UTC().Format("20060102150405.000")),
			Paths: &cftypes.Paths{
				Quantity: aws.Int32(int32(len(paths))),
				Items:    paths,
			},
		},
	})
	return err
}
