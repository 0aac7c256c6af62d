// Package extract 按文件类型把上传的原始文档转换为纯文本。
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"carepulse-go/internal/config"
	"carepulse-go/pkg/log"
	"carepulse-go/pkg/tika"

	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	pdfmodel "github.com/unidoc/unipdf/v3/model"
)

// ErrUnsupportedFileType 表示请求提取的扩展名不在支持范围内，调用方应中止该文件的摄取。
var ErrUnsupportedFileType = errors.New("unsupported file type")

// ErrExtractionFailed 表示解析器失败（文件损坏、编码不可读等）。
var ErrExtractionFailed = errors.New("text extraction failed")

// Extractor 按扩展名分发到对应的文本提取实现。
type Extractor struct {
	tikaClient *tika.Client
}

// New 创建 Extractor，并设置 unipdf 的许可证。
func New(pdfCfg config.PdfConfig, tikaClient *tika.Client) *Extractor {
	if pdfCfg.LicenseKey != "" {
		if err := license.SetMeteredKey(pdfCfg.LicenseKey); err != nil {
			log.Errorf("设置 unipdf 许可证失败，PDF 解析将不可用: %v", err)
		}
	}
	return &Extractor{tikaClient: tikaClient}
}

// Text 返回文件的完整纯文本内容。
// .txt 按 UTF-8 原样读取；.pdf 用 unipdf 按页序提取；.doc/.docx 交给 Tika；
// 其他扩展名返回 ErrUnsupportedFileType。
func (e *Extractor) Text(data []byte, fileName string) (text string, err error) {
	// 解析器在损坏文件上可能 panic，这里统一回收为提取失败
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: 解析 %s 时 panic: %v", ErrExtractionFailed, fileName, r)
		}
	}()

	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".txt":
		return string(data), nil
	case ".pdf":
		return e.pdfText(data)
	case ".doc", ".docx":
		content, terr := e.tikaClient.ExtractText(bytes.NewReader(data), fileName)
		if terr != nil {
			return "", fmt.Errorf("%w: %v", ErrExtractionFailed, terr)
		}
		return content, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, ext)
	}
}

// pdfText 使用 unipdf 逐页提取文本，按文档内部页序拼接。
func (e *Extractor) pdfText(data []byte) (string, error) {
	pdfReader, err := pdfmodel.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return "", fmt.Errorf("%w: 第 %d 页: %v", ErrExtractionFailed, i, err)
		}

		ex, err := extractor.New(page)
		if err != nil {
			return "", fmt.Errorf("%w: 第 %d 页: %v", ErrExtractionFailed, i, err)
		}

		pageText, err := ex.ExtractText()
		if err != nil {
			return "", fmt.Errorf("%w: 第 %d 页: %v", ErrExtractionFailed, i, err)
		}
		sb.WriteString(pageText)
		sb.WriteString("\n\n")
	}

	return sb.String(), nil
}
