package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/rescale/dualpane/internal/cloud"
)

// memBucket is an in-memory objectAPI for a single bucket.
type memBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBucket(keys ...string) *memBucket {
	b := &memBucket{objects: map[string][]byte{}}
	for _, k := range keys {
		b.objects[k] = []byte("content of " + k)
	}
	return b
}

func (b *memBucket) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.objects))
	for k := range b.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (b *memBucket) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)
	out := &s3.ListObjectsV2Output{}
	seen := map[string]bool{}
	for _, key := range b.keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if delim != "" {
			if i := strings.Index(rest, delim); i >= 0 {
				cp := prefix + rest[:i+1]
				if !seen[cp] {
					seen[cp] = true
					out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(cp)})
				}
				continue
			}
		}
		b.mu.Lock()
		size := int64(len(b.objects[key]))
		b.mu.Unlock()
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key), Size: aws.Int64(size), LastModified: aws.Time(time.Unix(0, 0))})
	}
	return out, nil
}

func (b *memBucket) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data))), LastModified: aws.Time(time.Unix(0, 0))}, nil
}

func (b *memBucket) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (b *memBucket) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (b *memBucket) CopyObject(ctx context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	src, err := url.PathUnescape(aws.ToString(in.CopySource))
	if err != nil {
		return nil, err
	}
	_, srcKey, _ := strings.Cut(src, "/")
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[srcKey]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	b.objects[aws.ToString(in.Key)] = data
	return &s3.CopyObjectOutput{}, nil
}

func (b *memBucket) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (b *memBucket) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range in.Delete.Objects {
		delete(b.objects, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func TestListDirectoriesAndFiles(t *testing.T) {
	bucket := newMemBucket("home/docs/", "home/docs/a.txt", "home/photos/2024/b.jpg", "home/readme.md", "other/x")
	p := newProvider(bucket, "data", "/home/")

	entries, err := p.List(context.Background(), "/")
	if err != nil {
		t.Fatalf("List(/) error = %v", err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Path)
	}
	want := []string{"/docs", "/photos", "/readme.md"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("List(/) = %v, want %v", got, want)
	}
	if !entries[0].IsDir || entries[2].IsDir {
		t.Errorf("directory flags wrong: %+v", entries)
	}

	docs, err := p.List(context.Background(), "/docs")
	if err != nil {
		t.Fatalf("List(/docs) error = %v", err)
	}
	if len(docs) != 1 || docs[0].Path != "/docs/a.txt" {
		t.Errorf("List(/docs) = %+v, want only a.txt (marker hidden)", docs)
	}
}

func TestListMissingAndFile(t *testing.T) {
	p := newProvider(newMemBucket("readme.md"), "data", "")
	ctx := context.Background()

	if _, err := p.List(ctx, "/nope"); !errors.Is(err, cloud.ErrNotFound) {
		t.Errorf("List(/nope) error = %v, want ErrNotFound", err)
	}
	if _, err := p.List(ctx, "/readme.md"); !errors.Is(err, cloud.ErrNotDir) {
		t.Errorf("List(file) error = %v, want ErrNotDir", err)
	}
}

func TestMkdirAllCreatesMarker(t *testing.T) {
	bucket := newMemBucket()
	p := newProvider(bucket, "data", "")
	ctx := context.Background()

	if err := p.MkdirAll(ctx, "/new/folder"); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if keys := bucket.keys(); len(keys) != 1 || keys[0] != "new/folder/" {
		t.Errorf("keys = %v, want [new/folder/]", keys)
	}
	entry, err := p.Stat(ctx, "/new/folder")
	if err != nil || !entry.IsDir {
		t.Errorf("Stat() = %+v, %v", entry, err)
	}
	if _, err := p.List(ctx, "/new/folder"); err != nil {
		t.Errorf("List(empty dir) error = %v", err)
	}
}

func TestRenameFile(t *testing.T) {
	bucket := newMemBucket("a.txt", "taken.txt")
	p := newProvider(bucket, "data", "")
	ctx := context.Background()

	if err := p.Rename(ctx, "/a.txt", "/taken.txt"); !errors.Is(err, cloud.ErrExists) {
		t.Errorf("Rename() onto existing error = %v, want ErrExists", err)
	}
	if err := p.Rename(ctx, "/a.txt", "/b.txt"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if keys := strings.Join(bucket.keys(), ","); keys != "b.txt,taken.txt" {
		t.Errorf("keys = %s", keys)
	}
}

func TestRenameDirectoryMovesTree(t *testing.T) {
	bucket := newMemBucket("src/", "src/a.txt", "src/sub/b.txt", "srcfile")
	p := newProvider(bucket, "data", "")

	if err := p.Rename(context.Background(), "/src", "/dst"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	want := "dst/,dst/a.txt,dst/sub/b.txt,srcfile"
	if keys := strings.Join(bucket.keys(), ","); keys != want {
		t.Errorf("keys = %s, want %s", keys, want)
	}
}

func TestRemoveAllDirectory(t *testing.T) {
	bucket := newMemBucket("tree/", "tree/a", "tree/sub/b", "keep")
	p := newProvider(bucket, "data", "")
	ctx := context.Background()

	if err := p.RemoveAll(ctx, "/tree"); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}
	if keys := strings.Join(bucket.keys(), ","); keys != "keep" {
		t.Errorf("keys = %s, want keep", keys)
	}
	if err := p.RemoveAll(ctx, "/tree"); !errors.Is(err, cloud.ErrNotFound) {
		t.Errorf("second RemoveAll() error = %v, want ErrNotFound", err)
	}
}

func TestUploadDownload(t *testing.T) {
	bucket := newMemBucket()
	p := newProvider(bucket, "data", "root")
	ctx := context.Background()
	dir := t.TempDir()

	src := filepath.Join(dir, "in.bin")
	os.WriteFile(src, []byte("payload"), 0o644)
	if err := p.Upload(ctx, src, "/docs/in.bin"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if keys := bucket.keys(); len(keys) != 1 || keys[0] != "root/docs/in.bin" {
		t.Errorf("keys = %v", keys)
	}

	dst := filepath.Join(dir, "out.bin")
	if err := p.Download(ctx, "/docs/in.bin", dst); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if data, _ := os.ReadFile(dst); string(data) != "payload" {
		t.Errorf("downloaded %q", data)
	}

	if err := p.Download(ctx, "/missing", filepath.Join(dir, "x")); !errors.Is(err, cloud.ErrNotFound) {
		t.Errorf("Download(missing) error = %v, want ErrNotFound", err)
	}
}

func TestConnectionInfo(t *testing.T) {
	if got := newProvider(newMemBucket(), "data", "").ConnectionInfo(); got != "s3://data" {
		t.Errorf("ConnectionInfo() = %q", got)
	}
	if got := newProvider(newMemBucket(), "data", "/home/").ConnectionInfo(); got != "s3://data/home" {
		t.Errorf("ConnectionInfo() = %q", got)
	}
}
