package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"supportchat-backend/internal/events"
	"supportchat-backend/internal/model"
	"supportchat-backend/internal/service"
	"supportchat-backend/internal/storage"
	"supportchat-backend/internal/utils"
	"supportchat-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

const heartbeatInterval = 30 * time.Second // 每30秒发送心跳

type ChatHandler struct {
	chatService *service.ChatService
	hub         *events.Hub
	ws          *events.WSServer
}

func NewChatHandler(chatService *service.ChatService, hub *events.Hub, ws *events.WSServer) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		hub:         hub,
		ws:          ws,
	}
}

// Register 注册聊天接口
func (h *ChatHandler) Register(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.GET("/ws", h.ServeWS)

	chat := router.Group("/api/chat")
	{
		chat.POST("/session", h.StartNewChat)
		chat.POST("/session/pending", h.OpenSession)
		chat.POST("/session/list", h.GetSessionList)
		chat.GET("/session/:session_id", h.GetSession)
		chat.POST("/session/:session_id/select", h.SelectSession)
		chat.POST("/session/:session_id/messages", h.SendMessage)
		chat.POST("/session/:session_id/pickup", h.PickUp)
		chat.POST("/session/:session_id/transfer", h.TransferToHuman)
		chat.POST("/session/:session_id/end", h.EndSession)
		chat.GET("/session/:session_id/export", h.Export)
		chat.GET("/session/:session_id/events", h.StreamEvents)
		chat.GET("/messages/:session_id", h.GetMessages)
		chat.GET("/quick-replies", h.QuickReplies)
	}
}

func (h *ChatHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"backend_available": h.chatService.BackendAvailable(),
		"timestamp":         time.Now().Unix(),
	})
}

func (h *ChatHandler) StartNewChat(c *gin.Context) {
	var req model.CreateSessionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	session, err := h.chatService.StartNewChat(req.Title, req.Kind)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.chatService.Describe(session))
}

func (h *ChatHandler) OpenSession(c *gin.Context) {
	var req model.CreateSessionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	session, err := h.chatService.OpenSession(req.Title, req.Kind)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.chatService.Describe(session))
}

func (h *ChatHandler) GetSessionList(c *gin.Context) {
	var req model.ListSessionsRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	sessions, err := h.chatService.ListSessions(req.Query)
	if err != nil {
		respondError(c, err)
		return
	}

	// 转换为接口视图
	views := make([]model.SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, h.chatService.Describe(session))
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": views,
		"selected": h.chatService.Selected(),
	})
}

func (h *ChatHandler) GetSession(c *gin.Context) {
	session, err := h.chatService.GetSession(c.Param("session_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.chatService.Describe(session))
}

func (h *ChatHandler) SelectSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := h.chatService.Select(sessionID); err != nil {
		respondError(c, err)
		return
	}

	session, err := h.chatService.GetSession(sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.chatService.Describe(session))
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	sessionID := c.Param("session_id")

	messages, err := h.chatService.Messages(sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   messages,
		"is_typing":  h.chatService.IsTyping(sessionID),
	})
}

// SendMessage 发送用户消息
// 被忽略的消息（空白或上一条回复未完成）不算错误，返回 accepted=false
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ex, ok, err := h.chatService.Submit(c.Param("session_id"), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, model.SubmitResponse{Accepted: false})
		return
	}

	resp := model.SubmitResponse{Accepted: true, UserMessage: &ex.User}
	// 默认等待机器人回复，wait=false 时立即返回
	if req.Wait == nil || *req.Wait {
		if bot, ok := ex.Wait(c.Request.Context()); ok {
			resp.BotMessage = &bot
		} else {
			resp.Pending = true
		}
	} else {
		resp.Pending = true
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) PickUp(c *gin.Context) {
	h.transition(c, h.chatService.PickUp)
}

func (h *ChatHandler) TransferToHuman(c *gin.Context) {
	h.transition(c, h.chatService.TransferToHuman)
}

func (h *ChatHandler) EndSession(c *gin.Context) {
	h.transition(c, h.chatService.EndSession)
}

func (h *ChatHandler) transition(c *gin.Context, fn func(string) (*model.Session, error)) {
	session, err := fn(c.Param("session_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.chatService.Describe(session))
}

func (h *ChatHandler) Export(c *gin.Context) {
	filename, data, err := h.chatService.Export(c.Param("session_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	contentType := "application/json"
	if strings.HasSuffix(filename, ".txt") {
		contentType = "text/plain; charset=utf-8"
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, data)
}

func (h *ChatHandler) QuickReplies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"quick_replies": h.chatService.QuickReplies()})
}

// StreamEvents 以SSE推送会话事件，直到客户端断开
func (h *ChatHandler) StreamEvents(c *gin.Context) {
	sessionID := c.Param("session_id")
	if _, err := h.chatService.GetSession(sessionID); err != nil {
		respondError(c, err)
		return
	}

	sub := h.hub.Subscribe(sessionID)
	defer h.hub.Unsubscribe(sub)

	// write_timeout 是绝对截止时间，SSE连接需要清除它才能长期保持
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		logger.Warnf("Failed to clear write deadline for event stream %s: %v", sessionID, err)
	}

	sseWriter := utils.NewSSEWriter(c.Writer)
	// 先把响应头发出去，客户端才能开始读
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			// 发送心跳，防止连接因空闲被代理断开
			if err := sseWriter.Heartbeat(); err != nil {
				return
			}
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := sseWriter.WriteJSON(string(event.Type), event); err != nil {
				logger.Warnf("Failed to write SSE event: %v", err)
				return
			}
		}
	}
}

func (h *ChatHandler) ServeWS(c *gin.Context) {
	h.ws.Serve(c.Writer, c.Request, c.Query("session_id"))
}

// bindOptionalJSON 解析请求体到 v
// 允许空请求体；格式错误时返回400并返回 false
func bindOptionalJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// respondError 按错误类型映射HTTP状态码
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Errorf("Request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
