// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"carepulse-go/internal/config"
	"carepulse-go/internal/model"
	"carepulse-go/internal/repository"
	"carepulse-go/pkg/kafka"
	"carepulse-go/pkg/log"
	"carepulse-go/pkg/storage"
	"carepulse-go/pkg/tasks"
)

// ErrInvalidFileName 表示文件名为空或不合法。
var ErrInvalidFileName = errors.New("文件名不合法")

// UploadService 接口定义了文档接收和摄取任务状态查询操作。
type UploadService interface {
	// Intake 保存上传的原始文件并投递摄取任务, 立即返回, 不等待处理完成。
	Intake(ctx context.Context, fileName string, size int64, r io.Reader) (*model.FileIngest, error)
	Status(fileName string) (*model.FileIngest, error)
	List(limit int) ([]model.FileIngest, error)
}

type uploadService struct {
	ingestRepo repository.IngestRepository
	minioCfg   config.MinIOConfig
}

// NewUploadService 创建一个新的 UploadService 实例。
func NewUploadService(ingestRepo repository.IngestRepository, minioCfg config.MinIOConfig) UploadService {
	return &uploadService{
		ingestRepo: ingestRepo,
		minioCfg:   minioCfg,
	}
}

// Intake 接收一个上传文件：写入 MinIO, 建立任务记录, 投递 Kafka 摄取任务。
// HTTP 层在本方法返回后即可应答客户端, 实际解析与向量化由消费者异步完成。
func (s *uploadService) Intake(ctx context.Context, fileName string, size int64, r io.Reader) (*model.FileIngest, error) {
	fileName = sanitizeFileName(fileName)
	if fileName == "" {
		return nil, ErrInvalidFileName
	}
	log.Infof("[UploadService] 接收文件: %s, 大小: %d字节", fileName, size)

	// 1. 原始文件落盘到 MinIO
	objectName, err := storage.PutUpload(ctx, s.minioCfg.BucketName, fileName, r, size)
	if err != nil {
		log.Errorf("[UploadService] 写入MinIO失败, FileName: %s, Error: %v", fileName, err)
		return nil, fmt.Errorf("保存上传文件失败: %w", err)
	}

	// 2. 建立摄取任务记录
	record := &model.FileIngest{
		FileName:   fileName,
		ObjectName: objectName,
		TotalSize:  size,
		Status:     model.IngestStatusProcessing,
	}
	if err := s.ingestRepo.Create(record); err != nil {
		log.Errorf("[UploadService] 创建任务记录失败, FileName: %s, Error: %v", fileName, err)
		return nil, fmt.Errorf("创建摄取任务记录失败: %w", err)
	}

	// 3. 投递摄取任务。投递失败时标记任务失败, 上传本身仍然成功落盘。
	task := tasks.DocIngestTask{
		JobID:      record.ID,
		FileName:   fileName,
		ObjectName: objectName,
	}
	if err := kafka.ProduceIngestTask(task); err != nil {
		log.Errorf("[UploadService] 投递摄取任务失败, JobID: %d, Error: %v", record.ID, err)
		if markErr := s.ingestRepo.MarkFailed(record.ID, "投递摄取任务失败: "+err.Error()); markErr != nil {
			log.Errorf("[UploadService] 更新任务失败状态出错, JobID: %d, Error: %v", record.ID, markErr)
		}
		return nil, fmt.Errorf("投递摄取任务失败: %w", err)
	}

	log.Infof("[UploadService] 文件已接收并投递摄取任务, JobID: %d, Object: %s", record.ID, objectName)
	return record, nil
}

// Status 查询指定文件最近一次摄取任务的状态。
func (s *uploadService) Status(fileName string) (*model.FileIngest, error) {
	fileName = sanitizeFileName(fileName)
	if fileName == "" {
		return nil, ErrInvalidFileName
	}
	return s.ingestRepo.FindLatestByFileName(fileName)
}

// List 列出最近的摄取任务。
func (s *uploadService) List(limit int) ([]model.FileIngest, error) {
	return s.ingestRepo.List(limit)
}

// sanitizeFileName 去掉路径成分, 只保留基础文件名。
func sanitizeFileName(fileName string) string {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return ""
	}
	base := filepath.Base(filepath.Clean(fileName))
	if base == "." || base == ".." || base == "/" {
		return ""
	}
	return base
}
