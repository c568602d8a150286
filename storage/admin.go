package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
)

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// Admin 提供 cmd/minio 使用的存储桶巡检与清理操作
type Admin struct {
	client *minio.Client
	bucket string
}

// NewAdmin 创建存储桶管理器，InitMinio 必须已经调用过
func NewAdmin(bucket string) (*Admin, error) {
	if minioClient == nil {
		return nil, fmt.Errorf("MinIO 客户端未初始化")
	}
	return &Admin{client: minioClient, bucket: bucket}, nil
}

// Stats 汇总指定前缀下的对象数量与体积
func (a *Admin) Stats(prefix string) (*BucketStats, error) {
	ctx := context.Background()
	stats := &BucketStats{}

	objectCh := a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
	}
	return stats, nil
}

// List 打印指定前缀下的对象清单
func (a *Admin) List(prefix string, recursive bool) error {
	ctx := context.Background()

	objectCh := a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	})
	for object := range objectCh {
		if object.Err != nil {
			return fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		fmt.Printf("%s  %.2f MB  %s\n",
			object.Key,
			float64(object.Size)/1024/1024,
			object.LastModified.Format(time.RFC3339))
	}
	return nil
}

// DeletePrefix 删除指定前缀下的所有对象
func (a *Admin) DeletePrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("删除操作需要指定前缀")
	}
	ctx := context.Background()

	objectCh := a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	deleted := 0
	for object := range objectCh {
		if object.Err != nil {
			return fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		if err := a.client.RemoveObject(ctx, a.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			log.Printf("删除对象 %s 失败: %v", object.Key, err)
			continue
		}
		deleted++
	}
	fmt.Printf("共删除 %d 个对象\n", deleted)
	return nil
}
