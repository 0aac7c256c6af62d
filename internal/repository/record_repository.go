package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"carepulse-go/internal/model"
)

// RecordRepository 接口定义了医院业务数据的增量读取和同步水位线操作。
type RecordRepository interface {
	FindPatientsUpdatedSince(since time.Time) ([]model.Patient, error)
	FindAppointmentsUpdatedSince(since time.Time) ([]model.Appointment, error)

	// 同步水位线 (Redis)
	GetWatermark(ctx context.Context, key string) (time.Time, error)
	SetWatermark(ctx context.Context, key string, t time.Time) error
}

// recordRepository 是 RecordRepository 接口的 GORM+Redis 实现。
type recordRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewRecordRepository 创建一个新的 RecordRepository 实例。
func NewRecordRepository(db *gorm.DB, redisClient *redis.Client) RecordRepository {
	return &recordRepository{db: db, redisClient: redisClient}
}

// FindPatientsUpdatedSince 查询指定时间之后更新过的患者档案。
func (r *recordRepository) FindPatientsUpdatedSince(since time.Time) ([]model.Patient, error) {
	var patients []model.Patient
	err := r.db.Where("updated_at > ?", since).Order("updated_at asc").Find(&patients).Error
	return patients, err
}

// FindAppointmentsUpdatedSince 查询指定时间之后更新过的预约记录，预加载关联患者。
func (r *recordRepository) FindAppointmentsUpdatedSince(since time.Time) ([]model.Appointment, error) {
	var appointments []model.Appointment
	err := r.db.Preload("Patient").Where("updated_at > ?", since).Order("updated_at asc").Find(&appointments).Error
	return appointments, err
}

// GetWatermark 读取上次同步的时间水位线。键不存在时返回零值时间，表示全量同步。
func (r *recordRepository) GetWatermark(ctx context.Context, key string) (time.Time, error) {
	val, err := r.redisClient.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// SetWatermark 写入本次同步完成的时间水位线。
func (r *recordRepository) SetWatermark(ctx context.Context, key string, t time.Time) error {
	return r.redisClient.Set(ctx, key, t.Format(time.RFC3339Nano), 0).Err()
}
