// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Patient 对应于数据库中的 'patients' 表，由外部挂号系统写入。
// 记录同步任务把这些字段渲染成纯文本后向量化。
type Patient struct {
	ID                     uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name                   string    `gorm:"type:varchar(100);not null" json:"name"`
	Email                  string    `gorm:"type:varchar(255)" json:"email"`
	Phone                  string    `gorm:"type:varchar(20)" json:"phone"`
	BirthDate              time.Time `json:"birthDate"`
	Gender                 string    `gorm:"type:varchar(10)" json:"gender"`
	Address                string    `gorm:"type:varchar(200)" json:"address"`
	Occupation             string    `gorm:"type:varchar(100)" json:"occupation"`
	PrimaryPhysician       string    `gorm:"type:varchar(100)" json:"primaryPhysician"`
	InsuranceProvider      string    `gorm:"type:varchar(100)" json:"insuranceProvider"`
	InsurancePolicyNumber  string    `gorm:"type:varchar(50)" json:"insurancePolicyNumber"`
	Allergies              string    `gorm:"type:text" json:"allergies"`
	CurrentMedication      string    `gorm:"type:text" json:"currentMedication"`
	FamilyMedicalHistory   string    `gorm:"type:text" json:"familyMedicalHistory"`
	PastMedicalHistory     string    `gorm:"type:text" json:"pastMedicalHistory"`
	EmergencyContactName   string    `gorm:"type:varchar(100)" json:"emergencyContactName"`
	EmergencyContactNumber string    `gorm:"type:varchar(20)" json:"emergencyContactNumber"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime;index" json:"updatedAt"`
}

func (Patient) TableName() string {
	return "patients"
}

// Appointment 对应于数据库中的 'appointments' 表。
type Appointment struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PatientID          uint      `gorm:"index;not null" json:"patientId"`
	Patient            *Patient  `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	Schedule           time.Time `json:"schedule"`
	Status             string    `gorm:"type:varchar(20);not null" json:"status"` // pending / scheduled / cancelled
	PrimaryPhysician   string    `gorm:"type:varchar(100)" json:"primaryPhysician"`
	Reason             string    `gorm:"type:text" json:"reason"`
	Note               string    `gorm:"type:text" json:"note"`
	CancellationReason string    `gorm:"type:text" json:"cancellationReason"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime;index" json:"updatedAt"`
}

func (Appointment) TableName() string {
	return "appointments"
}

// EsRecordDoc 定义了医院业务记录在 Elasticsearch 中的存储结构。
type EsRecordDoc struct {
	Category     string    `json:"category"` // patients / appointments
	Text         string    `json:"text"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
}
