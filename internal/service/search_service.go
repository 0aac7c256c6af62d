// Package service 提供了检索相关的业务逻辑。
package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"carepulse-go/internal/config"
	"carepulse-go/internal/model"
	"carepulse-go/pkg/embedding"
	"carepulse-go/pkg/es"
	"carepulse-go/pkg/log"
)

// SearchService 接口定义了文档检索操作。
type SearchService interface {
	Query(ctx context.Context, query string) ([]model.RelevantContent, error)
}

// ChunkSearcher 抽象了向量索引的近邻检索能力。
type ChunkSearcher interface {
	KNNSearchChunks(ctx context.Context, vector []float32, topK int) ([]model.QueryMatch, error)
}

// esChunkSearcher 基于 Elasticsearch kNN 的 ChunkSearcher 实现。
type esChunkSearcher struct {
	indexName string
}

// NewEsChunkSearcher 创建一个面向指定索引的 ChunkSearcher。
func NewEsChunkSearcher(indexName string) ChunkSearcher {
	return &esChunkSearcher{indexName: indexName}
}

func (s *esChunkSearcher) KNNSearchChunks(ctx context.Context, vector []float32, topK int) ([]model.QueryMatch, error) {
	return es.KNNSearchChunks(ctx, s.indexName, vector, topK)
}

type searchService struct {
	embeddingClient embedding.Client
	searcher        ChunkSearcher
	retrievalCfg    config.RetrievalConfig
	headingRe       *regexp.Regexp
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(embeddingClient embedding.Client, searcher ChunkSearcher, retrievalCfg config.RetrievalConfig) SearchService {
	return &searchService{
		embeddingClient: embeddingClient,
		searcher:        searcher,
		retrievalCfg:    retrievalCfg,
		headingRe:       regexp.MustCompile(retrievalCfg.HeadingPattern),
	}
}

// Query 执行单次检索：去除口语前缀 -> 向量化 -> kNN 召回 -> 词法重排 -> 定位摘录。
// 无跨调用状态，可以被并发调用。
func (s *searchService) Query(ctx context.Context, query string) ([]model.RelevantContent, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return []model.RelevantContent{}, nil
	}
	log.Infof("[SearchService] 开始检索, query: '%s'", trimmed)

	// 1. 去除口语化前缀，得到实质查询
	substantive := stripQueryPrefix(trimmed, s.retrievalCfg.QueryPrefixes)
	if substantive != trimmed {
		log.Infof("[SearchService] 步骤1: 去除前缀: '%s' -> '%s'", trimmed, substantive)
	}

	// 2. 向量化查询（与摄取侧使用同一个模型，保证语义空间一致）
	log.Info("[SearchService] 步骤2: 向量化查询")
	queryVector, err := s.embeddingClient.Embed(ctx, substantive)
	if err != nil {
		log.Errorf("[SearchService] 向量化查询失败: %v", err)
		return nil, fmt.Errorf("向量化查询失败: %w", err)
	}

	// 3. kNN 召回 topK 候选
	log.Infof("[SearchService] 步骤3: kNN 召回, topK: %d", s.retrievalCfg.TopK)
	matches, err := s.searcher.KNNSearchChunks(ctx, queryVector, s.retrievalCfg.TopK)
	if err != nil {
		log.Errorf("[SearchService] 向量检索失败: %v", err)
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}
	if len(matches) == 0 {
		log.Info("[SearchService] 未召回任何候选, 返回空结果")
		return []model.RelevantContent{}, nil
	}

	// 4. 词法重排：优先选取规范化后包含查询文本的候选，否则保留相似度第一名。
	// 向量召回可能返回语义相近但字面无关的段落，精确包含是更强的信号。
	normQuery := normalizeForCompare(substantive)
	chosen := matches[0]
	if normQuery != "" {
		for _, m := range matches {
			if strings.Contains(normalizeForCompare(m.Metadata.Line), normQuery) {
				chosen = m
				break
			}
		}
	}
	log.Infof("[SearchService] 步骤4: 选定候选, id: %s, score: %.4f", chosen.ID, chosen.Score)

	// 5. 选择锚点：命中行与查询等价时用存储行，否则用实质查询本身
	anchor := substantive
	if normalizeForCompare(chosen.Metadata.Line) == normQuery {
		anchor = chosen.Metadata.Line
	}

	// 6. 在段落中定位锚点并截取到下一个标题之前的摘录
	excerpt := s.extractExcerpt(chosen.Metadata.Paragraph, anchor)

	content := strings.TrimSpace(chosen.Metadata.Line + "\n" + excerpt)
	log.Infof("[SearchService] 检索完成, 返回摘录长度: %d", len(content))
	return []model.RelevantContent{{RelevantContent: content}}, nil
}

// extractExcerpt 在段落中用空白容忍的正则定位锚点，截取锚点之后、下一个
// 数字标题（如 "12.3 "）之前的文本。锚点找不到时退回整个段落。
func (s *searchService) extractExcerpt(paragraph, anchor string) string {
	re, err := fuzzyAnchorRegex(anchor)
	if err != nil || re == nil {
		return strings.TrimSpace(paragraph)
	}
	loc := re.FindStringIndex(paragraph)
	if loc == nil {
		// 纯语义命中可能没有任何字面重叠，此时整段返回
		return strings.TrimSpace(paragraph)
	}
	remainder := paragraph[loc[1]:]
	if hl := s.headingRe.FindStringIndex(remainder); hl != nil {
		remainder = remainder[:hl[0]]
	}
	return strings.TrimSpace(remainder)
}

// stripQueryPrefix 去掉查询开头已知的口语化前缀（大小写不敏感）。
// 直接在原字符串上按前缀长度切片; ToLower 可能改变某些字符的字节长度,
// 不能用小写副本的偏移量回切原串。
func stripQueryPrefix(query string, prefixes []string) string {
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p == "" || len(query) < len(p) {
			continue
		}
		if strings.EqualFold(query[:len(p)], p) {
			stripped := strings.TrimSpace(query[len(p):])
			if stripped != "" {
				return stripped
			}
		}
	}
	return query
}

// normalizeForCompare 把文本规约为小写字母数字加单个空格的形式, 用于字面比较。
// NFKC 统一全角/半角等兼容形式; 空白折叠为单个空格保留词边界,
// 其余符号直接剔除——"sun set" 因此不会匹配到 "sunset"。
func normalizeForCompare(s string) string {
	var b strings.Builder
	pendingSpace := false
	for _, r := range norm.NFKC.String(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			pendingSpace = true
		}
	}
	return b.String()
}

// fuzzyAnchorRegex 由锚点文本构造大小写不敏感、空白容忍的正则：
// 逐词转义元字符，词间空白匹配任意空白串。
func fuzzyAnchorRegex(anchor string) (*regexp.Regexp, error) {
	fields := strings.Fields(anchor)
	if len(fields) == 0 {
		return nil, nil
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = regexp.QuoteMeta(f)
	}
	return regexp.Compile(`(?i)` + strings.Join(quoted, `\s+`))
}
