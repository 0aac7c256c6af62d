// Package pipeline 定义了文档摄取的核心流程。
package pipeline

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"carepulse-go/internal/model"
)

var (
	paragraphSplitRe = regexp.MustCompile(`\n\s*\n`)
	whitespaceRe     = regexp.MustCompile(`\s+`)
)

// NormalizeText 把所有空白折叠为单个空格并去掉首尾空白。
func NormalizeText(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// MakeVectorID 由 (文件名, 规范化行文本) 生成确定性 ID。
// 相同文件里相同内容的行永远得到同一个 ID，重复摄取因此只会覆盖。
func MakeVectorID(fileName, line string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%s", fileName, NormalizeText(line))))
	return "doc-" + hex.EncodeToString(sum[:])
}

// SplitStructured 把原始文本切成有序的结构化分块。
// 优先按空行分段、按行切分；没有段落结构时回退为固定大小切块。
// 纯函数：相同输入永远得到相同输出。
func SplitStructured(text string, maxChars int) []model.StructuredChunk {
	if text == "" {
		return nil
	}

	var paragraphs []string
	for _, p := range paragraphSplitRe.Split(text, -1) {
		if strings.TrimSpace(p) != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	if len(paragraphs) < 2 {
		// 检测不到段落结构，按大小切块
		return fixedSizeChunks(text, maxChars)
	}

	var chunks []model.StructuredChunk
	for paraIndex, paragraph := range paragraphs {
		trimmedPara := strings.TrimSpace(paragraph)
		lineIndex := 0
		for _, line := range strings.Split(paragraph, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			chunks = append(chunks, model.StructuredChunk{
				Paragraph:      trimmedPara,
				Line:           line,
				ParagraphIndex: paraIndex,
				LineIndex:      lineIndex,
			})
			lineIndex++
		}
	}
	return chunks
}

// fixedSizeChunks 把无段落结构的文本按词贪心累积，每块不超过 maxChars 个字符。
// 单个超长词独立成块。
func fixedSizeChunks(text string, maxChars int) []model.StructuredChunk {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil
	}

	var chunks []model.StructuredChunk
	lineIndex := 0
	flush := func(content string) {
		chunks = append(chunks, model.StructuredChunk{
			Paragraph:      content,
			Line:           content,
			ParagraphIndex: 0,
			LineIndex:      lineIndex,
		})
		lineIndex++
	}

	var buffer []string
	bufLen := 0
	for _, w := range strings.Split(normalized, " ") {
		candidate := bufLen + len(w)
		if bufLen > 0 {
			candidate++ // 连接空格
		}
		if candidate > maxChars {
			if len(buffer) > 0 {
				flush(strings.Join(buffer, " "))
				buffer = []string{w}
				bufLen = len(w)
			} else {
				// 单个词就超过阈值，强制独立成块
				flush(w)
				buffer = nil
				bufLen = 0
			}
		} else {
			buffer = append(buffer, w)
			bufLen = candidate
		}
	}
	if len(buffer) > 0 {
		flush(strings.Join(buffer, " "))
	}
	return chunks
}

// DedupChunks 按规范化后的行文本去重，保留首次出现的顺序。
// 去重范围是单个文档（单次摄取），不跨索引。
func DedupChunks(chunks []model.StructuredChunk) []model.StructuredChunk {
	seen := make(map[string]struct{}, len(chunks))
	unique := make([]model.StructuredChunk, 0, len(chunks))
	for _, c := range chunks {
		key := NormalizeText(c.Line)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, c)
	}
	return unique
}
