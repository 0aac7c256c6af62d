package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carepulse-go/internal/service"
	"carepulse-go/pkg/log"
)

// QueryHandler 负责处理文档检索请求。
type QueryHandler struct {
	searchService service.SearchService
}

// NewQueryHandler 创建一个新的 QueryHandler 实例。
func NewQueryHandler(searchService service.SearchService) *QueryHandler {
	return &QueryHandler{searchService: searchService}
}

type queryRequest struct {
	Query string `json:"query" binding:"required"`
}

// Query 处理检索请求: 接收 {query}, 返回 {results: [{relevantContent}]}。
func (h *QueryHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[QueryHandler] 请求体解析失败: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求体缺少 query 字段"})
		return
	}
	log.Infof("[QueryHandler] 收到检索请求, query: '%s'", req.Query)

	results, err := h.searchService.Query(c.Request.Context(), req.Query)
	if err != nil {
		log.Errorf("[QueryHandler] 检索失败, query: '%s', Error: %v", req.Query, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "检索失败", "results": []interface{}{}})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "results": results})
}
