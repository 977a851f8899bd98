// Package s3 serves a session's remote side from an S3 bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/rescale/dualpane/internal/cloud"
	dpconfig "github.com/rescale/dualpane/internal/config"
	"github.com/rescale/dualpane/internal/models"
)

// deleteBatchSize is the DeleteObjects limit.
const deleteBatchSize = 1000

// objectAPI is the subset of *s3.Client the provider uses.
type objectAPI interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, opts ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Provider is a cloud.RemoteFS over one bucket and key prefix. Keys ending
// in "/" and common prefixes are directories.
type Provider struct {
	client objectAPI
	bucket string
	prefix string
}

// New creates a provider. Credentials come from the static keys in cfg when
// both are set, otherwise from the AWS default chain.
func New(ctx context.Context, cfg dpconfig.S3Config, httpClient *nethttp.Client) (*Provider, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		// S3-compatible endpoints often reject trailing checksums.
		config.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
	}
	if httpClient != nil {
		opts = append(opts, config.WithHTTPClient(httpClient))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	log.Info().Str("bucket", cfg.Bucket).Str("prefix", cfg.Prefix).Str("region", cfg.Region).Msg("s3 storage configured")
	return newProvider(client, cfg.Bucket, cfg.Prefix), nil
}

func newProvider(client objectAPI, bucket, prefix string) *Provider {
	return &Provider{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (p *Provider) ConnectionInfo() string {
	if p.prefix == "" {
		return "s3://" + p.bucket
	}
	return "s3://" + p.bucket + "/" + p.prefix
}

func (p *Provider) List(ctx context.Context, dir string) ([]models.FileEntry, error) {
	dirPrefix := cloud.DirPrefix(p.prefix, dir)
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.bucket),
		Prefix:    aws.String(dirPrefix),
		Delimiter: aws.String("/"),
	})

	entries := []models.FileEntry{}
	found := dir == "/" || dir == ""
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError("list", dir, err)
		}
		for _, cp := range page.CommonPrefixes {
			found = true
			remote := cloud.RemotePath(p.prefix, aws.ToString(cp.Prefix))
			entries = append(entries, dirEntry(remote))
		}
		for _, obj := range page.Contents {
			found = true
			key := aws.ToString(obj.Key)
			if key == dirPrefix {
				continue
			}
			entries = append(entries, fileEntry(cloud.RemotePath(p.prefix, key), aws.ToInt64(obj.Size), aws.ToTime(obj.LastModified)))
		}
	}

	if !found {
		if _, err := p.head(ctx, cloud.ObjectKey(p.prefix, dir)); err == nil {
			return nil, fmt.Errorf("list %s: %w", dir, cloud.ErrNotDir)
		}
		return nil, fmt.Errorf("list %s: %w", dir, cloud.ErrNotFound)
	}
	cloud.SortEntries(entries)
	return entries, nil
}

func (p *Provider) Stat(ctx context.Context, name string) (models.FileEntry, error) {
	if name == "/" || name == "" {
		return dirEntry("/"), nil
	}
	out, err := p.head(ctx, cloud.ObjectKey(p.prefix, name))
	if err == nil {
		return fileEntry(path.Clean(name), aws.ToInt64(out.ContentLength), aws.ToTime(out.LastModified)), nil
	}
	if !errors.Is(err, cloud.ErrNotFound) {
		return models.FileEntry{}, err
	}

	isDir, err := p.dirExists(ctx, name)
	if err != nil {
		return models.FileEntry{}, mapError("stat", name, err)
	}
	if !isDir {
		return models.FileEntry{}, fmt.Errorf("stat %s: %w", name, cloud.ErrNotFound)
	}
	return dirEntry(path.Clean(name)), nil
}

func (p *Provider) MkdirAll(ctx context.Context, dir string) error {
	if dir == "/" || dir == "" {
		return nil
	}
	if _, err := p.head(ctx, cloud.ObjectKey(p.prefix, dir)); err == nil {
		return fmt.Errorf("mkdir %s: %w", dir, cloud.ErrExists)
	}
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(cloud.DirPrefix(p.prefix, dir)),
		Body:          strings.NewReader(""),
		ContentLength: aws.Int64(0),
	})
	return mapError("mkdir", dir, err)
}

// Rename copies every object under oldPath to newPath, then deletes the
// originals. It is not atomic.
func (p *Provider) Rename(ctx context.Context, oldPath, newPath string) error {
	if _, err := p.Stat(ctx, newPath); err == nil {
		return fmt.Errorf("rename %s: %w", newPath, cloud.ErrExists)
	} else if !errors.Is(err, cloud.ErrNotFound) {
		return err
	}
	src, err := p.Stat(ctx, oldPath)
	if err != nil {
		return err
	}

	if !src.IsDir {
		oldKey := cloud.ObjectKey(p.prefix, oldPath)
		if err := p.copy(ctx, oldKey, cloud.ObjectKey(p.prefix, newPath)); err != nil {
			return mapError("rename", oldPath, err)
		}
		return mapError("rename", oldPath, p.deleteKeys(ctx, []string{oldKey}))
	}

	oldPrefix := cloud.DirPrefix(p.prefix, oldPath)
	newPrefix := cloud.DirPrefix(p.prefix, newPath)
	keys, err := p.keysUnder(ctx, oldPrefix)
	if err != nil {
		return mapError("rename", oldPath, err)
	}
	for _, key := range keys {
		if err := p.copy(ctx, key, newPrefix+strings.TrimPrefix(key, oldPrefix)); err != nil {
			return mapError("rename", oldPath, err)
		}
	}
	return mapError("rename", oldPath, p.deleteKeys(ctx, keys))
}

func (p *Provider) RemoveAll(ctx context.Context, name string) error {
	entry, err := p.Stat(ctx, name)
	if err != nil {
		return err
	}
	if !entry.IsDir {
		return mapError("delete", name, p.deleteKeys(ctx, []string{cloud.ObjectKey(p.prefix, name)}))
	}
	keys, err := p.keysUnder(ctx, cloud.DirPrefix(p.prefix, name))
	if err != nil {
		return mapError("delete", name, err)
	}
	return mapError("delete", name, p.deleteKeys(ctx, keys))
}

func (p *Provider) Download(ctx context.Context, name, localPath string) error {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(cloud.ObjectKey(p.prefix, name)),
	})
	if err != nil {
		return mapError("download", name, err)
	}
	defer out.Body.Close()

	return cloud.WriteLocalFile(ctx, localPath, out.Body)
}

func (p *Provider) Upload(ctx context.Context, localPath, name string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(cloud.ObjectKey(p.prefix, name)),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	return mapError("upload", name, err)
}

func (p *Provider) Close() error {
	return nil
}

func (p *Provider) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError("stat", key, err)
	}
	return out, nil
}

func (p *Provider) dirExists(ctx context.Context, name string) (bool, error) {
	out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		Prefix:  aws.String(cloud.DirPrefix(p.prefix, name)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}
	return len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

func (p *Provider) keysUnder(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	})
	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (p *Provider) copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := p.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(p.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(url.PathEscape(p.bucket + "/" + srcKey)),
	})
	return err
}

func (p *Provider) deleteKeys(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
		}
		out, err := p.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(p.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return err
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("failed to delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}
	return nil
}

func dirEntry(remote string) models.FileEntry {
	return models.FileEntry{
		Name:        path.Base(remote),
		Path:        remote,
		IsDir:       true,
		Permissions: "drwxr-xr-x",
	}
}

func fileEntry(remote string, size int64, modTime time.Time) models.FileEntry {
	return models.FileEntry{
		Name:        path.Base(remote),
		Path:        remote,
		Size:        size,
		ModTime:     modTime,
		Permissions: "-rw-r--r--",
	}
}

// mapError translates S3 errors into the cloud sentinels.
func mapError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, cloud.ErrNotFound) || errors.Is(err, cloud.ErrPermission) {
		return err
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return fmt.Errorf("%s %s: %w", op, name, cloud.ErrNotFound)
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case nethttp.StatusNotFound:
			return fmt.Errorf("%s %s: %w", op, name, cloud.ErrNotFound)
		case nethttp.StatusForbidden:
			return fmt.Errorf("%s %s: %w", op, name, cloud.ErrPermission)
		}
	}
	return fmt.Errorf("%s %s: %w", op, name, err)
}

var _ cloud.RemoteFS = (*Provider)(nil)
