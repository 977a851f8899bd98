package azure

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// blobInfo is the metadata the provider needs about one blob.
type blobInfo struct {
	name    string
	size    int64
	modTime time.Time
}

// blobStore is the container surface the provider uses. containerStore
// implements it over the Azure SDK.
type blobStore interface {
	// listHierarchy returns the virtual directories and blobs directly under prefix.
	listHierarchy(ctx context.Context, prefix string) ([]string, []blobInfo, error)
	// listFlat returns every blob whose name starts with prefix.
	listFlat(ctx context.Context, prefix string, limit int32) ([]blobInfo, error)
	properties(ctx context.Context, name string) (blobInfo, error)
	open(ctx context.Context, name string) (io.ReadCloser, error)
	uploadFile(ctx context.Context, name string, f *os.File) error
	uploadStream(ctx context.Context, name string, r io.Reader) error
	remove(ctx context.Context, name string) error
}

type containerStore struct {
	client *container.Client
}

func (s containerStore) listHierarchy(ctx context.Context, prefix string) ([]string, []blobInfo, error) {
	pager := s.client.NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{Prefix: &prefix})
	var prefixes []string
	var blobs []blobInfo
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, nil, err
		}
		if page.Segment == nil {
			continue
		}
		for _, p := range page.Segment.BlobPrefixes {
			if p.Name != nil {
				prefixes = append(prefixes, *p.Name)
			}
		}
		for _, item := range page.Segment.BlobItems {
			blobs = append(blobs, toBlobInfo(item))
		}
	}
	return prefixes, blobs, nil
}

func (s containerStore) listFlat(ctx context.Context, prefix string, limit int32) ([]blobInfo, error) {
	opts := &container.ListBlobsFlatOptions{Prefix: &prefix}
	if limit > 0 {
		opts.MaxResults = &limit
	}
	pager := s.client.NewListBlobsFlatPager(opts)
	var blobs []blobInfo
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			blobs = append(blobs, toBlobInfo(item))
		}
		if limit > 0 && int32(len(blobs)) >= limit {
			break
		}
	}
	return blobs, nil
}

func (s containerStore) properties(ctx context.Context, name string) (blobInfo, error) {
	props, err := s.client.NewBlobClient(name).GetProperties(ctx, nil)
	if err != nil {
		return blobInfo{}, err
	}
	info := blobInfo{name: name}
	if props.ContentLength != nil {
		info.size = *props.ContentLength
	}
	if props.LastModified != nil {
		info.modTime = *props.LastModified
	}
	return info, nil
}

func (s containerStore) open(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := s.client.NewBlobClient(name).DownloadStream(ctx, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (s containerStore) uploadFile(ctx context.Context, name string, f *os.File) error {
	_, err := s.client.NewBlockBlobClient(name).UploadFile(ctx, f, &blockblob.UploadFileOptions{})
	return err
}

func (s containerStore) uploadStream(ctx context.Context, name string, r io.Reader) error {
	_, err := s.client.NewBlockBlobClient(name).UploadStream(ctx, r, nil)
	return err
}

func (s containerStore) remove(ctx context.Context, name string) error {
	_, err := s.client.NewBlobClient(name).Delete(ctx, nil)
	return err
}

func toBlobInfo(item *container.BlobItem) blobInfo {
	var info blobInfo
	if item.Name != nil {
		info.name = *item.Name
	}
	if item.Properties != nil {
		if item.Properties.ContentLength != nil {
			info.size = *item.Properties.ContentLength
		}
		if item.Properties.LastModified != nil {
			info.modTime = *item.Properties.LastModified
		}
	}
	return info
}
