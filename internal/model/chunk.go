// Package model 包含了应用的数据模型定义。
package model

// StructuredChunk 是文档切块后的最小摄取单元。
// Line 用于向量化与精确匹配，Paragraph 保留其所属段落的完整上下文。
type StructuredChunk struct {
	Paragraph      string
	Line           string
	ParagraphIndex int
	LineIndex      int
}

// ChunkMetadata 是随向量一起持久化的分块元数据。
type ChunkMetadata struct {
	Paragraph      string `json:"paragraph"`
	Line           string `json:"line"`
	Source         string `json:"source"`
	ParagraphIndex int    `json:"paragraph_index"`
	LineIndex      int    `json:"line_index"`
}

// VectorRecord 是写入向量索引的持久化单元。
// ID 由 (文件名, 规范化行文本) 确定性生成，重复摄取覆盖而不是追加。
type VectorRecord struct {
	ID       string        `json:"id"`
	Values   []float32     `json:"values"`
	Metadata ChunkMetadata `json:"metadata"`
}

// EsChunkDoc 定义了文档分块在 Elasticsearch 中的存储结构。
type EsChunkDoc struct {
	Paragraph      string    `json:"paragraph"`
	Line           string    `json:"line"`
	Source         string    `json:"source"`
	ParagraphIndex int       `json:"paragraph_index"`
	LineIndex      int       `json:"line_index"`
	Vector         []float32 `json:"vector"`
	ModelVersion   string    `json:"model_version"`
}

// QueryMatch 是一次近邻查询的单条命中，仅在查询期间存在，不持久化。
type QueryMatch struct {
	ID       string
	Score    float64
	Metadata ChunkMetadata
}

// RelevantContent 是查询入口返回给调用方的结果结构。
type RelevantContent struct {
	RelevantContent string `json:"relevantContent"`
}
