// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 摄取任务状态。
const (
	IngestStatusProcessing = 0
	IngestStatusCompleted  = 1
	IngestStatusFailed     = 2
)

// FileIngest 定义了 file_ingests 表的 ORM 模型。
// 上传确认与后台处理是解耦的，这张表让处理结果可以被事后查询。
type FileIngest struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	FileName   string     `gorm:"type:varchar(255);not null;index" json:"fileName"`
	ObjectName string     `gorm:"type:varchar(255);not null" json:"objectName"`
	TotalSize  int64      `gorm:"not null" json:"totalSize"`
	Status     int        `gorm:"type:tinyint;not null;default:0" json:"status"` // 0: processing, 1: completed, 2: failed
	ChunkCount int        `gorm:"not null;default:0" json:"chunkCount"`
	FailReason string     `gorm:"type:varchar(500)" json:"failReason"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	FinishedAt *time.Time `gorm:"default:null" json:"finishedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (FileIngest) TableName() string {
	return "file_ingests"
}
