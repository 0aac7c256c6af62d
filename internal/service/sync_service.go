package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"carepulse-go/internal/config"
	"carepulse-go/internal/model"
	"carepulse-go/internal/repository"
	"carepulse-go/pkg/embedding"
	"carepulse-go/pkg/es"
	"carepulse-go/pkg/log"
)

// SyncService 接口定义了医院业务记录到向量索引的增量同步。
type SyncService interface {
	// SyncOnce 执行一轮增量同步, 返回本轮处理的记录数。
	SyncOnce(ctx context.Context) (int, error)
	// Run 按固定间隔循环执行同步, 直到 ctx 取消。
	Run(ctx context.Context)
}

// RecordUpserter 抽象了业务记录向量的持久化能力。
type RecordUpserter interface {
	UpsertRecordDoc(ctx context.Context, id string, doc model.EsRecordDoc) error
}

// esRecordUpserter 基于 Elasticsearch 的 RecordUpserter 实现。
type esRecordUpserter struct {
	indexName string
}

// NewEsRecordUpserter 创建一个面向指定索引的 RecordUpserter。
func NewEsRecordUpserter(indexName string) RecordUpserter {
	return &esRecordUpserter{indexName: indexName}
}

func (u *esRecordUpserter) UpsertRecordDoc(ctx context.Context, id string, doc model.EsRecordDoc) error {
	return es.UpsertRecordDoc(ctx, u.indexName, id, doc)
}

type syncService struct {
	recordRepo      repository.RecordRepository
	embeddingClient embedding.Client
	upserter        RecordUpserter
	embeddingCfg    config.EmbeddingConfig
	syncCfg         config.RecordSyncConfig
}

// NewSyncService 创建一个新的 SyncService 实例。
func NewSyncService(
	recordRepo repository.RecordRepository,
	embeddingClient embedding.Client,
	upserter RecordUpserter,
	embeddingCfg config.EmbeddingConfig,
	syncCfg config.RecordSyncConfig,
) SyncService {
	return &syncService{
		recordRepo:      recordRepo,
		embeddingClient: embeddingClient,
		upserter:        upserter,
		embeddingCfg:    embeddingCfg,
		syncCfg:         syncCfg,
	}
}

// Run 周期性执行增量同步。启动时先跑一轮, 之后按配置间隔触发。
func (s *syncService) Run(ctx context.Context) {
	interval := time.Duration(s.syncCfg.IntervalMinutes) * time.Minute
	log.Infof("[SyncService] 记录同步任务启动, 间隔: %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := s.SyncOnce(ctx); err != nil {
			log.Errorf("[SyncService] 本轮同步失败: %v", err)
		} else if n > 0 {
			log.Infof("[SyncService] 本轮同步完成, 处理 %d 条记录", n)
		}

		select {
		case <-ctx.Done():
			log.Info("[SyncService] 记录同步任务停止")
			return
		case <-ticker.C:
		}
	}
}

// SyncOnce 把上次水位线之后更新过的患者档案和预约记录渲染成文本、
// 向量化并写入记录索引, 然后推进水位线。
// 单条记录失败只记录日志并跳过, 不影响其余记录; 但水位线不会越过
// 最早失败记录的更新时间, 失败记录留在下一轮扫描窗口内重试。
func (s *syncService) SyncOnce(ctx context.Context) (int, error) {
	since, err := s.recordRepo.GetWatermark(ctx, s.syncCfg.WatermarkKey)
	if err != nil {
		return 0, fmt.Errorf("读取同步水位线失败: %w", err)
	}
	log.Infof("[SyncService] 开始增量同步, 上次水位线: %s", since.Format(time.RFC3339))

	latest := since
	var earliestFailure time.Time
	processed := 0

	recordFailure := func(t time.Time) {
		if earliestFailure.IsZero() || t.Before(earliestFailure) {
			earliestFailure = t
		}
	}

	// 1. 患者档案
	patients, err := s.recordRepo.FindPatientsUpdatedSince(since)
	if err != nil {
		return processed, fmt.Errorf("查询更新的患者档案失败: %w", err)
	}
	for _, p := range patients {
		id := fmt.Sprintf("patient-%d", p.ID)
		if err := s.upsertRecord(ctx, id, "patients", renderPatientProfile(&p)); err != nil {
			log.Errorf("[SyncService] 同步患者记录失败, 跳过, id=%s: %v", id, err)
			recordFailure(p.UpdatedAt)
			continue
		}
		if p.UpdatedAt.After(latest) {
			latest = p.UpdatedAt
		}
		processed++
	}

	// 2. 预约记录（关联患者信息一并渲染）
	appointments, err := s.recordRepo.FindAppointmentsUpdatedSince(since)
	if err != nil {
		return processed, fmt.Errorf("查询更新的预约记录失败: %w", err)
	}
	for _, a := range appointments {
		id := fmt.Sprintf("appointment-%d", a.ID)
		if err := s.upsertRecord(ctx, id, "appointments", renderAppointmentDetails(&a)); err != nil {
			log.Errorf("[SyncService] 同步预约记录失败, 跳过, id=%s: %v", id, err)
			recordFailure(a.UpdatedAt)
			continue
		}
		if a.UpdatedAt.After(latest) {
			latest = a.UpdatedAt
		}
		processed++
	}

	// 3. 推进水位线。水位线被限制在最早失败记录之前, 该记录下一轮仍会被
	// 扫到; 期间已成功的记录按确定性 ID 重复写入, 是幂等的。
	next := latest
	if !earliestFailure.IsZero() && !earliestFailure.After(next) {
		next = earliestFailure.Add(-time.Nanosecond)
	}
	if next.After(since) {
		if err := s.recordRepo.SetWatermark(ctx, s.syncCfg.WatermarkKey, next); err != nil {
			return processed, fmt.Errorf("写入同步水位线失败: %w", err)
		}
	}
	return processed, nil
}

func (s *syncService) upsertRecord(ctx context.Context, id, category, text string) error {
	vector, err := s.embeddingClient.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("向量化记录失败: %w", err)
	}
	doc := model.EsRecordDoc{
		Category:     category,
		Text:         text,
		Vector:       vector,
		ModelVersion: s.embeddingCfg.Model,
	}
	return s.upserter.UpsertRecordDoc(ctx, id, doc)
}

// renderPatientProfile 把患者档案渲染为可检索的纯文本。
func renderPatientProfile(p *model.Patient) string {
	var b strings.Builder
	b.WriteString("Patient Profile:\n")
	writeField(&b, "Name", p.Name)
	writeField(&b, "Email", p.Email)
	writeField(&b, "Birth Date", p.BirthDate.Format("2006-01-02"))
	writeField(&b, "Gender", p.Gender)
	writeField(&b, "Address", p.Address)
	writeField(&b, "Occupation", p.Occupation)
	writeField(&b, "Primary Physician", p.PrimaryPhysician)
	writeField(&b, "Insurance Provider", p.InsuranceProvider)
	writeField(&b, "Insurance Policy Number", p.InsurancePolicyNumber)
	writeField(&b, "Allergies", p.Allergies)
	writeField(&b, "Current Medication", p.CurrentMedication)
	writeField(&b, "Family Medical History", p.FamilyMedicalHistory)
	writeField(&b, "Past Medical History", p.PastMedicalHistory)
	writeField(&b, "Emergency Contact Name", p.EmergencyContactName)
	writeField(&b, "Emergency Contact Number", p.EmergencyContactNumber)
	writeField(&b, "Phone", p.Phone)
	return strings.TrimRight(b.String(), "\n")
}

// renderAppointmentDetails 把预约记录（含关联患者）渲染为可检索的纯文本。
func renderAppointmentDetails(a *model.Appointment) string {
	var b strings.Builder
	b.WriteString("Appointment Details:\n")
	writeField(&b, "Schedule", a.Schedule.Format(time.RFC3339))
	writeField(&b, "Status", a.Status)
	writeField(&b, "Primary Physician", a.PrimaryPhysician)
	writeField(&b, "Reason", a.Reason)
	writeField(&b, "Note", a.Note)
	writeField(&b, "Cancellation Reason", a.CancellationReason)
	if a.Patient != nil {
		b.WriteString("Patient Details:\n")
		writeField(&b, "Name", a.Patient.Name)
		writeField(&b, "Email", a.Patient.Email)
		writeField(&b, "Phone", a.Patient.Phone)
		writeField(&b, "Primary Physician", a.Patient.PrimaryPhysician)
		writeField(&b, "Insurance Provider", a.Patient.InsuranceProvider)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeField(b *strings.Builder, name, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}
