package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"carepulse-go/internal/config"
	"carepulse-go/internal/model"
)

type fakeRecordRepo struct {
	patients     []model.Patient
	appointments []model.Appointment
	watermark    time.Time
	wroteCount   int
}

func (r *fakeRecordRepo) FindPatientsUpdatedSince(since time.Time) ([]model.Patient, error) {
	var out []model.Patient
	for _, p := range r.patients {
		if p.UpdatedAt.After(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeRecordRepo) FindAppointmentsUpdatedSince(since time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range r.appointments {
		if a.UpdatedAt.After(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeRecordRepo) GetWatermark(ctx context.Context, key string) (time.Time, error) {
	return r.watermark, nil
}

func (r *fakeRecordRepo) SetWatermark(ctx context.Context, key string, t time.Time) error {
	r.watermark = t
	r.wroteCount++
	return nil
}

type flakyUpserter struct {
	failIDs  map[string]bool
	upserted []string
}

func (u *flakyUpserter) UpsertRecordDoc(ctx context.Context, id string, doc model.EsRecordDoc) error {
	if u.failIDs[id] {
		return errors.New("index unavailable")
	}
	u.upserted = append(u.upserted, id)
	return nil
}

func newTestSyncService(repo *fakeRecordRepo, upserter *flakyUpserter) SyncService {
	return NewSyncService(repo, &stubEmbedder{vector: []float32{0.1, 0.2}}, upserter,
		config.EmbeddingConfig{Model: "test-model"},
		config.RecordSyncConfig{IntervalMinutes: 10, WatermarkKey: "record_sync:last_checked"})
}

func TestSyncOnceAdvancesWatermarkToLatestUpdate(t *testing.T) {
	t1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)
	repo := &fakeRecordRepo{
		patients:     []model.Patient{{ID: 1, Name: "Jane Smith", UpdatedAt: t1}},
		appointments: []model.Appointment{{ID: 5, Status: "scheduled", UpdatedAt: t2}},
	}
	upserter := &flakyUpserter{}
	svc := newTestSyncService(repo, upserter)

	n, err := svc.SyncOnce(context.Background())
	if err != nil {
		t.Fatalf("SyncOnce returned error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 processed records, got %d", n)
	}
	if !repo.watermark.Equal(t2) {
		t.Errorf("watermark = %s, want %s", repo.watermark, t2)
	}
}

func TestSyncOnceKeepsFailedRecordInScanWindow(t *testing.T) {
	t1 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)
	repo := &fakeRecordRepo{
		patients: []model.Patient{
			{ID: 1, Name: "Jane Smith", UpdatedAt: t1},
			{ID: 2, Name: "John Doe", UpdatedAt: t2},
		},
	}
	// 较早的记录写入失败, 较晚的成功
	upserter := &flakyUpserter{failIDs: map[string]bool{"patient-1": true}}
	svc := newTestSyncService(repo, upserter)

	n, err := svc.SyncOnce(context.Background())
	if err != nil {
		t.Fatalf("SyncOnce returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 processed record, got %d", n)
	}
	// 水位线不能越过失败记录, 否则它在下次编辑前永远不会被重试
	if !repo.watermark.Before(t1) {
		t.Errorf("watermark %s must stay before the failed record's update time %s", repo.watermark, t1)
	}

	// 下一轮写入恢复后, 失败记录被重新扫到
	upserter.failIDs = nil
	if _, err := svc.SyncOnce(context.Background()); err != nil {
		t.Fatalf("second SyncOnce returned error: %v", err)
	}
	found := false
	for _, id := range upserter.upserted {
		if id == "patient-1" {
			found = true
		}
	}
	if !found {
		t.Error("failed record should be retried on the next cycle")
	}
	if !repo.watermark.Equal(t2) {
		t.Errorf("watermark after recovery = %s, want %s", repo.watermark, t2)
	}
}

func TestRenderPatientProfileSkipsEmptyFields(t *testing.T) {
	p := &model.Patient{
		Name:      "Jane Smith",
		Phone:     "555-0100",
		BirthDate: time.Date(1990, 4, 12, 0, 0, 0, 0, time.UTC),
		Allergies: "Penicillin",
	}
	text := renderPatientProfile(p)

	if !strings.HasPrefix(text, "Patient Profile:") {
		t.Errorf("missing header: %q", text)
	}
	for _, want := range []string{"Name: Jane Smith", "Phone: 555-0100", "Birth Date: 1990-04-12", "Allergies: Penicillin"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in rendered text", want)
		}
	}
	if strings.Contains(text, "Email:") || strings.Contains(text, "Occupation:") {
		t.Errorf("empty fields should be omitted: %q", text)
	}
}

func TestRenderAppointmentDetailsIncludesPatient(t *testing.T) {
	a := &model.Appointment{
		Schedule:         time.Date(2026, 9, 15, 10, 30, 0, 0, time.UTC),
		Status:           "scheduled",
		PrimaryPhysician: "Dr. Green",
		Reason:           "Annual checkup",
		Patient: &model.Patient{
			Name:  "Jane Smith",
			Phone: "555-0100",
		},
	}
	text := renderAppointmentDetails(a)

	for _, want := range []string{
		"Appointment Details:",
		"Status: scheduled",
		"Primary Physician: Dr. Green",
		"Reason: Annual checkup",
		"Patient Details:",
		"Name: Jane Smith",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in rendered text", want)
		}
	}
}

func TestRenderAppointmentDetailsWithoutPatient(t *testing.T) {
	a := &model.Appointment{
		Schedule: time.Now(),
		Status:   "pending",
	}
	text := renderAppointmentDetails(a)
	if strings.Contains(text, "Patient Details:") {
		t.Errorf("should not render patient section when absent: %q", text)
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"handbook.pdf", "handbook.pdf"},
		{"  notes.txt ", "notes.txt"},
		{"../../etc/passwd", "passwd"},
		{"uploads/report.docx", "report.docx"},
		{"", ""},
		{"..", ""},
		{"   ", ""},
	}
	for _, c := range cases {
		if got := sanitizeFileName(c.in); got != c.want {
			t.Errorf("sanitizeFileName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
