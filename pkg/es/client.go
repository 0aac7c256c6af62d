// Package es 提供了与 Elasticsearch 向量索引交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"carepulse-go/internal/config"
	"carepulse-go/internal/model"
	"carepulse-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端，并确保文档分块索引和业务记录索引存在。
// dims 是向量维度，必须与 Embedding 模型一致。
func InitES(esCfg config.ElasticsearchConfig, dims int) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client

	if err := createIndexIfNotExists(esCfg.DocIndex, docMapping(dims)); err != nil {
		return err
	}
	return createIndexIfNotExists(esCfg.RecordIndex, recordMapping(dims))
}

// docMapping 是文档分块索引的 mapping，向量用 cosine 相似度。
func docMapping(dims int) string {
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"paragraph": { "type": "text" },
				"line": { "type": "text" },
				"source": { "type": "keyword" },
				"paragraph_index": { "type": "integer" },
				"line_index": { "type": "integer" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" }
			}
		}
	}`, dims)
}

// recordMapping 是医院业务记录索引的 mapping。
func recordMapping(dims int) string {
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"category": { "type": "keyword" },
				"text": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" }
			}
		}
	}`, dims)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName, mapping string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// BulkUpsertChunks 将一批分块向量以确定性 _id 批量写入索引。
// _id 相同的记录被覆盖而不是追加，重复摄取因此是幂等的。
func BulkUpsertChunks(ctx context.Context, indexName string, records []model.VectorRecord, modelVersion string) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, rec := range records {
		meta := map[string]map[string]string{
			"index": {"_index": indexName, "_id": rec.ID},
		}
		metaBytes, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		doc := model.EsChunkDoc{
			Paragraph:      rec.Metadata.Paragraph,
			Line:           rec.Metadata.Line,
			Source:         rec.Metadata.Source,
			ParagraphIndex: rec.Metadata.ParagraphIndex,
			LineIndex:      rec.Metadata.LineIndex,
			Vector:         rec.Values,
			ModelVersion:   modelVersion,
		}
		docBytes, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		buf.Write(metaBytes)
		buf.WriteByte('\n')
		buf.Write(docBytes)
		buf.WriteByte('\n')
	}

	res, err := ESClient.Bulk(
		bytes.NewReader(buf.Bytes()),
		ESClient.Bulk.WithContext(ctx),
		ESClient.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("批量写入 Elasticsearch 出错: %s", res.String())
		return errors.New("bulk upsert failed")
	}

	// bulk 接口整体 200 时仍可能有单条失败
	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return err
	}
	if bulkResp.Errors {
		return errors.New("bulk upsert reported item errors")
	}
	return nil
}

// UpsertChunk 将单条分块向量写入索引，是批量失败后的逐条兜底。
func UpsertChunk(ctx context.Context, indexName string, rec model.VectorRecord, modelVersion string) error {
	doc := model.EsChunkDoc{
		Paragraph:      rec.Metadata.Paragraph,
		Line:           rec.Metadata.Line,
		Source:         rec.Metadata.Source,
		ParagraphIndex: rec.Metadata.ParagraphIndex,
		LineIndex:      rec.Metadata.LineIndex,
		Vector:         rec.Values,
		ModelVersion:   modelVersion,
	}
	return indexDocument(ctx, indexName, rec.ID, doc)
}

// UpsertRecordDoc 将单条医院业务记录向量写入索引。
func UpsertRecordDoc(ctx context.Context, indexName, id string, doc model.EsRecordDoc) error {
	return indexDocument(ctx, indexName, id, doc)
}

func indexDocument(ctx context.Context, indexName, id string, doc interface{}) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: id,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index document")
	}

	return nil
}

// KNNSearchChunks 用 kNN 在分块索引中检索最相似的 topK 条记录，并带回元数据。
func KNNSearchChunks(ctx context.Context, indexName string, vector []float32, topK int) ([]model.QueryMatch, error) {
	query := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": topK * 10,
		},
		"size": topK,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(indexName),
		ESClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("Elasticsearch 检索返回错误: %s", res.String())
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				ID     string           `json:"_id"`
				Score  float64          `json:"_score"`
				Source model.EsChunkDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	matches := make([]model.QueryMatch, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		matches = append(matches, model.QueryMatch{
			ID:    hit.ID,
			Score: hit.Score,
			Metadata: model.ChunkMetadata{
				Paragraph:      hit.Source.Paragraph,
				Line:           hit.Source.Line,
				Source:         hit.Source.Source,
				ParagraphIndex: hit.Source.ParagraphIndex,
				LineIndex:      hit.Source.LineIndex,
			},
		})
	}
	return matches, nil
}
