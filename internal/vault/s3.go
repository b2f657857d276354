package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/famproject/sigchain/internal/config"
	"github.com/famproject/sigchain/internal/sigchain"
)

// S3Vault stores archived documents and assets in an S3 bucket:
//
//	<prefix>/documents/<content hash>
//	<prefix>/assets/<name>
//
// Archived documents are already encrypted by the time they reach the vault,
// so no bucket-side encryption configuration is required (though it does no
// harm).
type S3Vault struct {
	name     string
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Vault creates an S3 vault. With no static credentials configured it
// uses the default AWS credential chain. An endpoint override plus static
// credentials points it at an S3-compatible store such as MinIO.
func NewS3Vault(vc config.VaultConfig) (*S3Vault, error) {
	if vc.S3Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires a bucket")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(vc.S3Region)}
	if vc.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(vc.S3AccessKeyID, vc.S3SecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if vc.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(vc.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Vault{
		name:     vc.Name,
		bucket:   vc.S3Bucket,
		prefix:   vc.S3Prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

// NewS3VaultFromClient wraps an existing S3 client, for tests against a
// local S3-compatible endpoint.
func NewS3VaultFromClient(name, bucket, prefix string, client *s3.Client) *S3Vault {
	return &S3Vault{
		name:     name,
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

func (v *S3Vault) documentKey(contentHash string) string {
	return path.Join(v.prefix, "documents", contentHash)
}

func (v *S3Vault) assetKey(name string) string {
	return path.Join(v.prefix, "assets", name)
}

// PutDocument uploads document bytes addressed by content hash.
// Idempotent: re-uploading the same hash overwrites with identical bytes.
func (v *S3Vault) PutDocument(contentHash string, r io.Reader, size int64) error {
	return v.upload(v.documentKey(contentHash), r)
}

// GetDocument downloads archived document bytes by content hash.
func (v *S3Vault) GetDocument(contentHash string, w io.Writer) error {
	return v.download(v.documentKey(contentHash), w, fmt.Sprintf("document not found: %s", contentHash))
}

// PutAsset uploads a named verification asset.
func (v *S3Vault) PutAsset(name string, r io.Reader, size int64) error {
	return v.upload(v.assetKey(name), r)
}

// GetAsset downloads a named verification asset.
func (v *S3Vault) GetAsset(name string, w io.Writer) error {
	return v.download(v.assetKey(name), w, fmt.Sprintf("asset not found: %s", name))
}

func (v *S3Vault) upload(key string, r io.Reader) error {
	_, err := v.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

func (v *S3Vault) download(key string, w io.Writer, notFoundMsg string) error {
	out, err := v.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return fmt.Errorf("%s", notFoundMsg)
		}
		return fmt.Errorf("downloading %s: %w", key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	return nil
}

// ValidateSetup verifies the bucket is reachable with the configured credentials.
func (v *S3Vault) ValidateSetup() error {
	_, err := v.client.HeadBucket(context.Background(), &s3.HeadBucketInput{
		Bucket: aws.String(v.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 bucket %s inaccessible: %w", v.bucket, err)
	}
	return nil
}

// Compile-time check that S3Vault implements the sigchain.Vault interface
var _ sigchain.Vault = (*S3Vault)(nil)
