package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"carepulse-go/internal/config"
	"carepulse-go/internal/model"
	"carepulse-go/internal/repository"
	"carepulse-go/pkg/embedding"
	"carepulse-go/pkg/es"
	"carepulse-go/pkg/extract"
	"carepulse-go/pkg/log"
	"carepulse-go/pkg/storage"
	"carepulse-go/pkg/tasks"
)

// Processor 封装了文档摄取的所有依赖和逻辑。
type Processor struct {
	extractor       *extract.Extractor
	embeddingClient embedding.Client
	esCfg           config.ElasticsearchConfig
	minioCfg        config.MinIOConfig
	embeddingCfg    config.EmbeddingConfig
	ingestCfg       config.IngestConfig
	ingestRepo      repository.IngestRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	extractor *extract.Extractor,
	embeddingClient embedding.Client,
	esCfg config.ElasticsearchConfig,
	minioCfg config.MinIOConfig,
	embeddingCfg config.EmbeddingConfig,
	ingestCfg config.IngestConfig,
	ingestRepo repository.IngestRepository,
) *Processor {
	return &Processor{
		extractor:       extractor,
		embeddingClient: embeddingClient,
		esCfg:           esCfg,
		minioCfg:        minioCfg,
		embeddingCfg:    embeddingCfg,
		ingestCfg:       ingestCfg,
		ingestRepo:      ingestRepo,
	}
}

// Process 是文档摄取的主函数。
// 提取失败属于该文件的永久失败，标记任务失败后返回 nil 让消费者提交；
// 基础设施错误返回 error 交给消费者重试——确定性 ID 保证重试不会产生重复向量。
func (p *Processor) Process(ctx context.Context, task tasks.DocIngestTask) error {
	log.Infof("[Processor] 开始处理文档, JobID: %d, FileName: %s", task.JobID, task.FileName)

	// 1. 从 MinIO 下载文件。摄取任务可能先于上传写入到达，带有限重试。
	log.Infof("[Processor] 步骤1: 从MinIO下载文件, Bucket: %s, Object: %s", p.minioCfg.BucketName, task.ObjectName)
	data, err := storage.FetchObject(ctx, p.minioCfg.BucketName, task.ObjectName,
		p.ingestCfg.DownloadRetries, time.Duration(p.ingestCfg.DownloadRetryDelayMs)*time.Millisecond)
	if err != nil {
		log.Errorf("[Processor] 从MinIO下载文件失败, Object: %s, Error: %v", task.ObjectName, err)
		return fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d字节", len(data))
	if len(data) == 0 {
		p.markFailed(task.JobID, "文件内容为空")
		return nil
	}

	// 2. 按文件类型提取文本
	log.Info("[Processor] 步骤2: 提取文本内容")
	textContent, err := p.extractor.Text(data, task.FileName)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFileType) || errors.Is(err, extract.ErrExtractionFailed) {
			log.Errorf("[Processor] 文本提取失败, FileName: %s, Error: %v", task.FileName, err)
			p.markFailed(task.JobID, err.Error())
			return nil
		}
		return fmt.Errorf("文本提取失败: %w", err)
	}
	if textContent == "" {
		log.Warnf("[Processor] 提取的文本内容为空, 处理中止, FileName: %s", task.FileName)
		p.markFailed(task.JobID, "提取的文本内容为空")
		return nil
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(textContent))

	// 3. 文本切块并去重
	log.Infof("[Processor] 步骤3: 进行结构化分块, maxChunkChars: %d", p.ingestCfg.MaxChunkChars)
	chunks := SplitStructured(textContent, p.ingestCfg.MaxChunkChars)
	chunks = DedupChunks(chunks)
	log.Infof("[Processor] 步骤3: 分块完成, 去重后共 %d 个分块", len(chunks))
	if len(chunks) == 0 {
		p.markFailed(task.JobID, "未生成任何文本分块")
		return nil
	}

	// 4. 按批次向量化并写入索引（按文档顺序）
	log.Infof("[Processor] 步骤4: 开始按批次向量化与索引, batchSize: %d", p.ingestCfg.BatchSize)
	batchSize := p.ingestCfg.BatchSize
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		log.Infof("[Processor] 正在处理分块 %d-%d / %d", start, end-1, len(chunks))

		if err := p.embedAndUpsert(ctx, batch, task.FileName); err != nil {
			// 当前批次被放弃，之前已写入的批次保持有效，不回滚
			return fmt.Errorf("批次 %d-%d 处理失败: %w", start, end-1, err)
		}
	}
	log.Info("[Processor] 步骤4: 所有分块处理完毕")

	if err := p.ingestRepo.MarkCompleted(task.JobID, len(chunks)); err != nil {
		log.Errorf("[Processor] 更新任务状态失败, JobID: %d, Error: %v", task.JobID, err)
	}
	log.Infof("[Processor] 文档处理成功完成, JobID: %d", task.JobID)
	return nil
}

// embedAndUpsert 向量化一个批次并写入索引。
// 批量写入失败时回退为逐条写入，单条失败只记录日志并跳过，不阻塞同批次其他记录。
func (p *Processor) embedAndUpsert(ctx context.Context, batch []model.StructuredChunk, fileName string) error {
	lines := make([]string, len(batch))
	for i, c := range batch {
		lines[i] = c.Line
	}

	vectors, err := p.embeddingClient.EmbedBatch(ctx, lines)
	if err != nil {
		return fmt.Errorf("向量化失败: %w", err)
	}

	records := BuildVectorRecords(batch, vectors, fileName)

	if err := es.BulkUpsertChunks(ctx, p.esCfg.DocIndex, records, p.embeddingCfg.Model); err != nil {
		log.Warnf("[Processor] 批量写入失败, 回退为逐条写入: %v", err)
		for _, rec := range records {
			if err := es.UpsertChunk(ctx, p.esCfg.DocIndex, rec, p.embeddingCfg.Model); err != nil {
				log.Errorf("[Processor] 单条写入失败, 跳过, id=%s: %v", rec.ID, err)
			}
		}
	}
	return nil
}

// BuildVectorRecords 把分块和向量装配为待持久化的 VectorRecord。
func BuildVectorRecords(chunks []model.StructuredChunk, vectors [][]float32, fileName string) []model.VectorRecord {
	count := len(chunks)
	if len(vectors) < count {
		count = len(vectors)
	}
	records := make([]model.VectorRecord, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, model.VectorRecord{
			ID:     MakeVectorID(fileName, chunks[i].Line),
			Values: vectors[i],
			Metadata: model.ChunkMetadata{
				Paragraph:      chunks[i].Paragraph,
				Line:           chunks[i].Line,
				Source:         fileName,
				ParagraphIndex: chunks[i].ParagraphIndex,
				LineIndex:      chunks[i].LineIndex,
			},
		})
	}
	return records
}

// Abandon 在消费者放弃重试后记录任务的最终失败状态。
func (p *Processor) Abandon(ctx context.Context, task tasks.DocIngestTask, reason string) {
	log.Errorf("[Processor] 任务被放弃, JobID: %d, FileName: %s, 原因: %s", task.JobID, task.FileName, reason)
	p.markFailed(task.JobID, reason)
}

func (p *Processor) markFailed(jobID uint, reason string) {
	if err := p.ingestRepo.MarkFailed(jobID, reason); err != nil {
		log.Errorf("[Processor] 更新任务失败状态出错, JobID: %d, Error: %v", jobID, err)
	}
}
