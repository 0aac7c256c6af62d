package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"carepulse-go/pkg/log"
)

// ChatService 定义了基于 WebSocket 的会话式检索操作。
type ChatService interface {
	Respond(ctx context.Context, query string, ws *websocket.Conn) error
}

type chatService struct {
	searchService SearchService
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(searchService SearchService) ChatService {
	return &chatService{searchService: searchService}
}

// Respond 对单条查询执行检索, 把结果帧和完成帧依次写回连接。
func (s *chatService) Respond(ctx context.Context, query string, ws *websocket.Conn) error {
	results, err := s.searchService.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("检索失败: %w", err)
	}

	for _, r := range results {
		frame := map[string]interface{}{
			"type":            "result",
			"relevantContent": r.RelevantContent,
			"timestamp":       time.Now().UnixMilli(),
		}
		b, err := json.Marshal(frame)
		if err != nil {
			return fmt.Errorf("序列化结果帧失败: %w", err)
		}
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			return fmt.Errorf("写入结果帧失败: %w", err)
		}
	}
	if len(results) == 0 {
		log.Infof("[ChatService] 查询无命中: '%s'", query)
	}

	completion := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"results":   len(results),
		"timestamp": time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(completion)
	if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("写入完成帧失败: %w", err)
	}
	return nil
}
