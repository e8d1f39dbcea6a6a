// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"amazing-kissan-go/internal/model"
	"amazing-kissan-go/internal/service"
	"amazing-kissan-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ChatHandler 负责 AI 助手的问答与话题管理 API。
// 所有端点都挂在 OptionalAuthMiddleware 之后：登录用户与游客共用一套
// 路由，身份差异体现在会话键与历史是否落库上。
type ChatHandler struct {
	chatService    service.ChatService
	sessionService service.SessionService
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(chatService service.ChatService, sessionService service.SessionService) *ChatHandler {
	return &ChatHandler{
		chatService:    chatService,
		sessionService: sessionService,
	}
}

// sessionIdentity 解析本次请求的会话键与用户名。
// 登录用户用固定的用户会话键，游客的会话键另加前缀：
// X-Session-Id 由客户端提供，不加隔离的话可以伪造出任意用户的会话键。
func sessionIdentity(c *gin.Context) (sessionID, username string) {
	if userValue, exists := c.Get("user"); exists {
		if user, ok := userValue.(*model.User); ok && user != nil {
			return userSessionID(user.Username), user.Username
		}
	}
	if guestID := c.GetString("guestSessionID"); guestID != "" {
		return guestSessionID(guestID), ""
	}
	return "", ""
}

// loadState 取出（或新建）当前请求的会话状态。
func (h *ChatHandler) loadState(c *gin.Context) (*model.SessionState, bool) {
	sessionID, username := sessionIdentity(c)
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "缺少会话标识",
		})
		return nil, false
	}

	state, err := h.sessionService.EnsureSession(c.Request.Context(), sessionID, username)
	if err != nil {
		log.Errorf("Chat: Failed to load session '%s', error: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "会话加载失败",
		})
		return nil, false
	}
	return state, true
}

// saveState 把修改后的会话状态写回存储。
func (h *ChatHandler) saveState(c *gin.Context, state *model.SessionState) bool {
	if err := h.sessionService.SaveSession(c.Request.Context(), state); err != nil {
		log.Errorf("Chat: Failed to save session '%s', error: %v", state.SessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "会话保存失败",
		})
		return false
	}
	return true
}

// sessionView 是问答与话题端点统一返回的会话快照。
func sessionView(state *model.SessionState) gin.H {
	history := state.History
	if history == nil {
		history = []model.Turn{}
	}
	return gin.H{
		"mode":         state.Mode,
		"currentTopic": state.CurrentTopic,
		"history":      history,
		"guest":        state.Guest,
	}
}

// SubmitRequest 定义了提交问题 API 的请求体结构。
type SubmitRequest struct {
	Message string `json:"message" binding:"required"`
}

// Submit 处理一次用户提问。
func (h *ChatHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Submit: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：message 不能为空",
		})
		return
	}

	state, ok := h.loadState(c)
	if !ok {
		return
	}

	turn, err := h.chatService.Submit(c.Request.Context(), state, req.Message)
	if err != nil {
		if errors.Is(err, service.ErrEmptyInput) {
			// 空白输入是无操作，会话状态原样返回
			c.JSON(http.StatusOK, gin.H{
				"code":    http.StatusOK,
				"message": "empty input ignored",
				"data":    sessionView(state),
			})
			return
		}
		log.Errorf("Submit: Chat failed for session '%s', error: %v", state.SessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "问答处理失败",
		})
		return
	}

	if !h.saveState(c, state) {
		return
	}

	view := sessionView(state)
	view["turn"] = turn
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    view,
	})
}

// ListTopics 返回话题名列表，最近创建的在前。
func (h *ChatHandler) ListTopics(c *gin.Context) {
	state, ok := h.loadState(c)
	if !ok {
		return
	}

	topics := h.sessionService.ListTopics(c.Request.Context(), state)

	// 惰性加载可能刚刚发生，写回以免下次重复查库
	if !h.saveState(c, state) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"topics": topics},
	})
}

// SelectTopicRequest 定义了切换话题 API 的请求体结构。
type SelectTopicRequest struct {
	Name string `json:"name" binding:"required"`
}

// SelectTopic 切换到一个已有话题。
func (h *ChatHandler) SelectTopic(c *gin.Context) {
	var req SelectTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("SelectTopic: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：name 不能为空",
		})
		return
	}

	state, ok := h.loadState(c)
	if !ok {
		return
	}

	if err := h.sessionService.SelectTopic(c.Request.Context(), state, req.Name); err != nil {
		if errors.Is(err, service.ErrTopicNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    http.StatusNotFound,
				"message": "话题不存在",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "话题切换失败",
		})
		return
	}

	if !h.saveState(c, state) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    sessionView(state),
	})
}

// NewChat 开始新的对话：清空当前缓冲并回到未选话题状态。
func (h *ChatHandler) NewChat(c *gin.Context) {
	state, ok := h.loadState(c)
	if !ok {
		return
	}

	h.sessionService.NewChat(state)

	if !h.saveState(c, state) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    sessionView(state),
	})
}

// SearchTopics 按关键词找到第一个命中的话题并切换过去。
func (h *ChatHandler) SearchTopics(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "查询参数 q 不能为空",
		})
		return
	}

	state, ok := h.loadState(c)
	if !ok {
		return
	}

	name, found := h.sessionService.SearchTopics(c.Request.Context(), state, query)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    http.StatusNotFound,
			"message": "没有匹配的话题",
		})
		return
	}

	if !h.saveState(c, state) {
		return
	}
	view := sessionView(state)
	view["matched"] = name
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    view,
	})
}

// History 返回当前话题的内存缓冲，供前端恢复界面。
func (h *ChatHandler) History(c *gin.Context) {
	state, ok := h.loadState(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    sessionView(state),
	})
}
