// Package storage 提供了与对象存储服务（MinIO）交互的功能，上传的原始文档都保存在这里。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"carepulse-go/internal/config"
	"carepulse-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	// 检查存储桶是否存在，如果不存在则创建
	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// PutUpload 将上传的原始文档写入 uploads/ 前缀下。
func PutUpload(ctx context.Context, bucketName, fileName string, r io.Reader, size int64) (string, error) {
	objectName := fmt.Sprintf("uploads/%s", fileName)
	_, err := MinioClient.PutObject(ctx, bucketName, objectName, r, size, minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("写入对象 %s 失败: %w", objectName, err)
	}
	return objectName, nil
}

// FetchObject 把对象完整读入内存。摄取任务可能先于上传写入到达，
// 对象暂时不可见时按配置做有限次数的延迟重试。
func FetchObject(ctx context.Context, bucketName, objectName string, retries int, delay time.Duration) ([]byte, error) {
	if retries <= 0 {
		retries = 1
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		object, err := MinioClient.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
		if err != nil {
			lastErr = err
		} else {
			buf := new(bytes.Buffer)
			_, err = buf.ReadFrom(object)
			_ = object.Close()
			if err == nil {
				log.Infof("对象 %s 在第 %d 次尝试后读取成功", objectName, attempt+1)
				return buf.Bytes(), nil
			}
			lastErr = err
		}
		if attempt < retries-1 {
			log.Warnf("对象 %s 暂不可读，%s 后重试: %v", objectName, delay, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, fmt.Errorf("读取对象 %s 失败: %w", objectName, lastErr)
}
