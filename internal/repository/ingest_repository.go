// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"time"

	"gorm.io/gorm"

	"carepulse-go/internal/model"
)

// IngestRepository 接口定义了文档摄取任务相关的数据持久化操作。
type IngestRepository interface {
	Create(record *model.FileIngest) error
	MarkCompleted(jobID uint, chunkCount int) error
	MarkFailed(jobID uint, reason string) error
	FindLatestByFileName(fileName string) (*model.FileIngest, error)
	List(limit int) ([]model.FileIngest, error)
}

// ingestRepository 是 IngestRepository 接口的 GORM 实现。
type ingestRepository struct {
	db *gorm.DB
}

// NewIngestRepository 创建一个新的 IngestRepository 实例。
func NewIngestRepository(db *gorm.DB) IngestRepository {
	return &ingestRepository{db: db}
}

// Create 在数据库中创建一条新的摄取任务记录。
func (r *ingestRepository) Create(record *model.FileIngest) error {
	return r.db.Create(record).Error
}

// MarkCompleted 把任务标记为处理完成并记录分块数量。
func (r *ingestRepository) MarkCompleted(jobID uint, chunkCount int) error {
	now := time.Now()
	return r.db.Model(&model.FileIngest{}).Where("id = ?", jobID).Updates(map[string]interface{}{
		"status":      model.IngestStatusCompleted,
		"chunk_count": chunkCount,
		"fail_reason": "",
		"finished_at": &now,
	}).Error
}

// MarkFailed 把任务标记为失败并保存失败原因。
func (r *ingestRepository) MarkFailed(jobID uint, reason string) error {
	now := time.Now()
	return r.db.Model(&model.FileIngest{}).Where("id = ?", jobID).Updates(map[string]interface{}{
		"status":      model.IngestStatusFailed,
		"fail_reason": reason,
		"finished_at": &now,
	}).Error
}

// FindLatestByFileName 查询指定文件最近一次的摄取任务。
func (r *ingestRepository) FindLatestByFileName(fileName string) (*model.FileIngest, error) {
	var record model.FileIngest
	err := r.db.Where("file_name = ?", fileName).Order("id desc").First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List 按时间倒序列出最近的摄取任务。
func (r *ingestRepository) List(limit int) ([]model.FileIngest, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []model.FileIngest
	err := r.db.Order("id desc").Limit(limit).Find(&records).Error
	return records, err
}
