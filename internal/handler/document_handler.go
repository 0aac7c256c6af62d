// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"carepulse-go/internal/service"
	"carepulse-go/pkg/log"
)

// DocumentHandler 负责处理文档上传与摄取状态相关的 API 请求。
type DocumentHandler struct {
	uploadService service.UploadService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(uploadService service.UploadService) *DocumentHandler {
	return &DocumentHandler{uploadService: uploadService}
}

// Upload 处理文档上传请求。文件落盘并投递摄取任务后立即应答,
// 不等待解析和向量化完成。
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		log.Warnf("[DocumentHandler] 上传请求缺少文件: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求中缺少 file 字段"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Errorf("[DocumentHandler] 打开上传文件失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取上传文件失败"})
		return
	}
	defer file.Close()

	record, err := h.uploadService.Intake(c.Request.Context(), fileHeader.Filename, fileHeader.Size, file)
	if err != nil {
		if errors.Is(err, service.ErrInvalidFileName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "文件名不合法"})
			return
		}
		log.Errorf("[DocumentHandler] 文件接收失败, FileName: %s, Error: %v", fileHeader.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "文件接收失败"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"code":    http.StatusAccepted,
		"message": "文件已接收, 正在后台处理",
		"data":    gin.H{"jobId": record.ID, "fileName": record.FileName},
	})
}

// Status 查询指定文件最近一次摄取任务的状态。
func (h *DocumentHandler) Status(c *gin.Context) {
	fileName := c.Param("fileName")
	record, err := h.uploadService.Status(fileName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "未找到该文件的摄取记录"})
			return
		}
		if errors.Is(err, service.ErrInvalidFileName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "文件名不合法"})
			return
		}
		log.Errorf("[DocumentHandler] 查询摄取状态失败, FileName: %s, Error: %v", fileName, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询摄取状态失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": record})
}

// List 列出最近的摄取任务。
func (h *DocumentHandler) List(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 50
	}

	records, err := h.uploadService.List(limit)
	if err != nil {
		log.Errorf("[DocumentHandler] 查询摄取任务列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询摄取任务列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": records})
}
