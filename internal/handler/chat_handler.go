package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"carepulse-go/internal/service"
	"carepulse-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理 WebSocket 会话式检索连接。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

type chatFrame struct {
	Query string `json:"query"`
}

// Handle 处理一个传入的 WebSocket 连接。每个查询帧触发一次检索,
// 结果帧与完成帧按顺序写回同一连接。
func (h *ChatHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("[ChatHandler] WebSocket 连接已建立: %s", c.ClientIP())

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("[ChatHandler] 读取消息失败, 连接关闭: %v", err)
			break
		}

		var frame chatFrame
		if err := json.Unmarshal(message, &frame); err != nil || frame.Query == "" {
			// 兼容裸文本帧
			frame.Query = string(message)
		}
		if frame.Query == "" {
			continue
		}

		if err := h.chatService.Respond(c.Request.Context(), frame.Query, conn); err != nil {
			log.Errorf("[ChatHandler] 处理查询失败: %v", err)
			errFrame := map[string]string{"type": "error", "error": "检索服务暂时不可用, 请稍后重试"}
			b, _ := json.Marshal(errFrame)
			if writeErr := conn.WriteMessage(websocket.TextMessage, b); writeErr != nil {
				break
			}
		}
	}
}
