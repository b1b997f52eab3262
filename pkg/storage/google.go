package storage

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
)

var ErrNotInitialized = errors.New("cloud storage was not initialized")

type GoogleCloudClient struct {
	bucket *storage.BucketHandle
	client *storage.Client
	ctx    context.Context
}

// NewGoogleCloudClient returns a Google Cloud Storage client of the bucket.
func NewGoogleCloudClient(ctx context.Context, bucket string) (*GoogleCloudClient, error) {
	if bucket == "" {
		return nil, errors.New("no bucket")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleCloudClient{bucket: client.Bucket(bucket), client: client, ctx: ctx}, nil
}

// Save saves data as a GCS object with optional metadata tags.
func (c *GoogleCloudClient) Save(name string, data []byte, tags map[string]string) error {
	if c == nil {
		return ErrNotInitialized
	}
	wc := c.bucket.Object(name).NewWriter(c.ctx)
	wc.ContentType = "application/json"
	wc.Metadata = tags
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return err
	}
	return wc.Close()
}

// Load loads an object from GCS.
func (c *GoogleCloudClient) Load(name string) (data []byte, err error) {
	if c == nil {
		return nil, ErrNotInitialized
	}
	rc, err := c.bucket.Object(name).NewReader(c.ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

func (c *GoogleCloudClient) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
