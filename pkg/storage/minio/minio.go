package minio

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/storage"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	PublicURL string
	// Prefix namespaces every key, so several bot instances can share a bucket.
	Prefix string
}

type Client struct {
	core      *minio.Client
	bucket    string
	prefix    string
	publicURL string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	core, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	if err := ensureBucket(ctx, core, cfg.Bucket, cfg.Region); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
	}
	return &Client{
		core:      core,
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil || exists {
		return err
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func (c *Client) PutObject(ctx context.Context, in storage.UploadInput) (string, error) {
	key := c.key(in.Key)
	_, err := c.core.PutObject(ctx, c.bucket, key, in.Body, in.Size, minio.PutObjectOptions{ContentType: in.ContentType})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return c.objectURL(key), nil
}

func (c *Client) key(name string) string {
	name = strings.TrimLeft(name, "/")
	if c.prefix == "" {
		return name
	}
	return path.Join(c.prefix, name)
}

func (c *Client) objectURL(key string) string {
	if c.publicURL != "" {
		return c.publicURL + "/" + key
	}
	if endpoint := c.core.EndpointURL(); endpoint != nil {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(endpoint.String(), "/"), c.bucket, key)
	}
	return fmt.Sprintf("/%s/%s", c.bucket, key)
}

var _ storage.Service = (*Client)(nil)
