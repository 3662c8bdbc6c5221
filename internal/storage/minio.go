package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"cvlm/internal/config"
	"cvlm/internal/ports"
)

// Client 封装 MinIO 客户端，实现 ports.FileStore。
type Client struct {
	internalClient *minio.Client
	publicClient   *minio.Client
	bucketName     string
}

var _ ports.FileStore = (*Client)(nil)

// NewClient 根据配置初始化 MinIO 客户端，并确保目标 Bucket 存在。
func NewClient(ctx context.Context, cfg config.MinIOConfig) (*Client, error) {
	bucketLookup, err := parseBucketLookup(cfg.BucketLookup)
	if err != nil {
		return nil, err
	}
	creds := credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")

	internalClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        creds,
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: bucketLookup,
	})
	if err != nil {
		return nil, fmt.Errorf("init internal minio client: %w", err)
	}

	// 预签名链接要用浏览器可达的地址签名，未配置时与内部地址相同。
	publicClient := internalClient
	if strings.TrimSpace(cfg.PublicEndpoint) != "" {
		parsed, err := url.Parse(cfg.PublicEndpoint)
		if err != nil {
			return nil, fmt.Errorf("parse minio public endpoint: %w", err)
		}
		if parsed.Host == "" {
			return nil, fmt.Errorf("invalid minio public endpoint, host missing")
		}
		publicClient, err = minio.New(parsed.Host, &minio.Options{
			Creds:        creds,
			Secure:       parsed.Scheme == "https",
			Region:       cfg.Region,
			BucketLookup: bucketLookup,
		})
		if err != nil {
			return nil, fmt.Errorf("init public minio client: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := internalClient.BucketExists(ctx, cfg.Bucket)
	if err != nil && !isMissingBucket(err) {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if !cfg.AutoCreateBucket {
			return nil, fmt.Errorf("bucket %q does not exist (auto create disabled)", cfg.Bucket)
		}
		if err := internalClient.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("make bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &Client{
		internalClient: internalClient,
		publicClient:   publicClient,
		bucketName:     cfg.Bucket,
	}, nil
}

func parseBucketLookup(raw string) (minio.BucketLookupType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return minio.BucketLookupAuto, nil
	case "dns":
		return minio.BucketLookupDNS, nil
	case "path":
		return minio.BucketLookupPath, nil
	default:
		return minio.BucketLookupAuto, fmt.Errorf("invalid minio bucket lookup %q", raw)
	}
}

// Ping 检查 Bucket 可达，用于健康检查。
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.internalClient.BucketExists(ctx, c.bucketName); err != nil {
		return fmt.Errorf("check bucket %q: %w", c.bucketName, err)
	}
	return nil
}

// Save 把对象写入私有 Bucket，返回对象 key。
func (c *Client) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := c.internalClient.PutObject(ctx, c.bucketName, key, r, size, opts); err != nil {
		return "", fmt.Errorf("put object %q: %w", key, err)
	}
	return key, nil
}

// Open 读取对象；对象不存在时返回 ports.ErrObjectNotFound。
func (c *Client) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := c.internalClient.GetObject(ctx, c.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}
	// GetObject 是惰性的，Stat 提前暴露 NoSuchKey。
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isMissingObject(err) {
			return nil, fmt.Errorf("get object %q: %w", key, ports.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("stat object %q: %w", key, err)
	}
	return obj, nil
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}
	if _, err := c.internalClient.StatObject(ctx, c.bucketName, key, minio.StatObjectOptions{}); err != nil {
		if isMissingObject(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object %q: %w", key, err)
	}
	return true, nil
}

// Delete 删除对象。
// 若对象不存在返回 false 且视为成功（幂等）。
func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	exists, err := c.Exists(ctx, key)
	if err != nil || !exists {
		return false, err
	}
	if err := c.internalClient.RemoveObject(ctx, c.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		if isMissingObject(err) {
			return false, nil
		}
		return false, fmt.Errorf("remove object %q: %w", key, err)
	}
	return true, nil
}

// PresignedURL 生成限时下载链接，downloadName 非空时带上 Content-Disposition。
func (c *Client) PresignedURL(ctx context.Context, key string, ttl time.Duration, downloadName string) (string, error) {
	params := url.Values{}
	if downloadName != "" {
		params.Set("response-content-disposition", ContentDisposition(downloadName))
	}
	presignedURL, err := c.publicClient.PresignedGetObject(ctx, c.bucketName, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("generate presigned url for %q: %w", key, err)
	}
	return presignedURL.String(), nil
}

// ContentDisposition 生成 attachment 头，非 ASCII 文件名按 RFC 2231 编码。
func ContentDisposition(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}
