package pipeline

import (
	"context"
	"testing"

	"carepulse-go/internal/config"
	"carepulse-go/internal/model"
	"carepulse-go/pkg/tasks"
)

type fakeIngestRepo struct {
	failedJobID    uint
	failedReason   string
	completedJobID uint
	chunkCount     int
}

func (r *fakeIngestRepo) Create(record *model.FileIngest) error { return nil }

func (r *fakeIngestRepo) MarkCompleted(jobID uint, chunkCount int) error {
	r.completedJobID = jobID
	r.chunkCount = chunkCount
	return nil
}

func (r *fakeIngestRepo) MarkFailed(jobID uint, reason string) error {
	r.failedJobID = jobID
	r.failedReason = reason
	return nil
}

func (r *fakeIngestRepo) FindLatestByFileName(fileName string) (*model.FileIngest, error) {
	return nil, nil
}

func (r *fakeIngestRepo) List(limit int) ([]model.FileIngest, error) { return nil, nil }

func TestAbandonMarksJobFailed(t *testing.T) {
	repo := &fakeIngestRepo{}
	p := NewProcessor(nil, nil, config.ElasticsearchConfig{}, config.MinIOConfig{}, config.EmbeddingConfig{}, config.IngestConfig{}, repo)

	task := tasks.DocIngestTask{JobID: 7, FileName: "handbook.pdf", ObjectName: "uploads/handbook.pdf"}
	p.Abandon(context.Background(), task, "连续 3 次处理失败, 已放弃")

	if repo.failedJobID != 7 {
		t.Errorf("expected job 7 marked failed, got %d", repo.failedJobID)
	}
	if repo.failedReason != "连续 3 次处理失败, 已放弃" {
		t.Errorf("unexpected fail reason: %q", repo.failedReason)
	}
	if repo.completedJobID != 0 {
		t.Errorf("no job should be marked completed, got %d", repo.completedJobID)
	}
}
