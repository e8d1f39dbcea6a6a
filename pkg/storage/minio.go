// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"io"
	"time"

	"amazing-kissan-go/internal/config"
	"amazing-kissan-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

var bucketName string

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("failed to create minio client", err)
	}

	bucketName = cfg.BucketName
	ctx := context.Background()
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("failed to check minio bucket", err)
	}
	if !exists {
		if err := MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("failed to create minio bucket", err)
		}
		log.Infof("MinIO 存储桶 '%s' 创建成功", bucketName)
	}

	log.Info("MinIO client connected successfully")
}

// UploadObject 上传一个对象（如集市条目的图片）到存储桶。
func UploadObject(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := MinioClient.PutObject(ctx, bucketName, objectName, reader, size,
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

// PresignedGetURL 为对象生成一个限时的下载链接。
func PresignedGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	u, err := MinioClient.PresignedGetObject(ctx, bucketName, objectName, expiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
