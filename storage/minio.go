package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"VoxDub/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotExist 对象不存在
var ErrNotExist = errors.New("对象不存在")

// ObjectInfo 对象元信息
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// ObjectStore is the narrow contract the pipeline and the server consume.
type ObjectStore interface {
	// StatObject returns the object's metadata, or ErrNotExist.
	StatObject(ctx context.Context, key string) (*ObjectInfo, error)
	// FPutObject uploads a local file.
	FPutObject(ctx context.Context, key, filePath, contentType, acl string) error
	// FGetObject downloads an object to a local file.
	FGetObject(ctx context.Context, key, filePath string) error
	// GetObject opens an object for streaming.
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
}

var minioClient *minio.Client

// InitMinio 初始化全局 MinIO 客户端并确保存储桶存在
func InitMinio(cfg *config.Config) error {
	log.Printf("正在连接 MinIO 服务器: %s, bucket: %s", cfg.MinioEndpoint, cfg.MinioBucket)

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion})
		if err != nil {
			return fmt.Errorf("创建存储桶失败: %w", err)
		}
		log.Printf("✅ 成功创建存储桶: %s", cfg.MinioBucket)
	}

	minioClient = client
	log.Println("✅ MinIO 客户端初始化成功！")
	return nil
}

// GetMinioClient 获取 MinIO 客户端实例
func GetMinioClient() *minio.Client {
	return minioClient
}

// MinioStore 基于 MinIO 的对象存储实现
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore wraps the global client for the given bucket. InitMinio must
// have been called first.
func NewMinioStore(bucket string) (*MinioStore, error) {
	if minioClient == nil {
		return nil, errors.New("MinIO 客户端未初始化")
	}
	return &MinioStore{client: minioClient, bucket: bucket}, nil
}

// StatObject 查询对象元信息，不存在时返回 ErrNotExist
func (s *MinioStore) StatObject(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("查询对象 %s 失败: %w", key, err)
	}
	return &ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}, nil
}

// FPutObject 上传本地文件
func (s *MinioStore) FPutObject(ctx context.Context, key, filePath, contentType, acl string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if acl != "" {
		opts.UserMetadata = map[string]string{"x-amz-acl": acl}
	}
	_, err := s.client.FPutObject(ctx, s.bucket, key, filePath, opts)
	if err != nil {
		return fmt.Errorf("上传对象 %s 失败: %w", key, err)
	}
	return nil
}

// FGetObject 下载对象到本地文件
func (s *MinioStore) FGetObject(ctx context.Context, key, filePath string) error {
	err := s.client.FGetObject(ctx, s.bucket, key, filePath, minio.GetObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return ErrNotExist
		}
		return fmt.Errorf("下载对象 %s 失败: %w", key, err)
	}
	return nil
}

// GetObject 以流的方式打开对象
func (s *MinioStore) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s 失败: %w", key, err)
	}
	return object, nil
}
