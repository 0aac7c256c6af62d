// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocIngestTask represents the data structure for a document ingestion job.
type DocIngestTask struct {
	JobID      uint   `json:"job_id"`
	FileName   string `json:"file_name"`
	ObjectName string `json:"object_name"`
}
