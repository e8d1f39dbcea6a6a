// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"
	"time"

	"amazing-kissan-go/internal/config"
	"amazing-kissan-go/internal/model"
	"amazing-kissan-go/internal/service"
	"amazing-kissan-go/pkg/log"
	"amazing-kissan-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// MessageHandler 负责处理农户留言板相关的 API 请求。
type MessageHandler struct {
	messageService service.MessageService
	userService    service.UserService
	jwtManager     *token.JWTManager
}

// NewMessageHandler 创建一个新的 MessageHandler 实例。
func NewMessageHandler(messageService service.MessageService, userService service.UserService, jwtManager *token.JWTManager) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		userService:    userService,
		jwtManager:     jwtManager,
	}
}

// PostMessageRequest 定义了发布消息 API 的请求体结构。
type PostMessageRequest struct {
	Mode     string `json:"mode" binding:"required"`
	Receiver string `json:"receiver"`
	Message  string `json:"message" binding:"required"`
}

// Post 发布一条公开消息或私信。
func (h *MessageHandler) Post(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("PostMessage: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：mode 和 message 不能为空",
		})
		return
	}

	user, ok := currentUser(c)
	if !ok {
		return
	}

	message, err := h.messageService.Post(user.Username, req.Receiver, req.Message, req.Mode)
	if err != nil {
		log.Warnf("PostMessage: Failed for user '%s', error: %v", user.Username, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": message, "message": "success"})
}

// Feed 列出消息流。mode 取 public 或 private，after 为增量轮询游标。
func (h *MessageHandler) Feed(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	mode := c.DefaultQuery("mode", model.MessageModePublic)
	afterID, _ := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)

	messages, err := h.messageService.Feed(mode, user.Username, uint(afterID))
	if err != nil {
		log.Errorf("Feed: Failed for user '%s', error: %v", user.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "获取消息失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": messages, "message": "success"})
}

// Like 给一条消息点赞。
func (h *MessageHandler) Like(c *gin.Context) {
	messageID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的消息 ID",
		})
		return
	}

	likes, err := h.messageService.Like(uint(messageID))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    http.StatusNotFound,
			"message": "消息不存在",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": gin.H{"likes": likes}, "message": "success"})
}

// AddCommentRequest 定义了发表评论 API 的请求体结构。
type AddCommentRequest struct {
	Comment string `json:"comment" binding:"required"`
}

// AddComment 在消息下发表评论。
func (h *MessageHandler) AddComment(c *gin.Context) {
	messageID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的消息 ID",
		})
		return
	}

	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("AddComment: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：comment 不能为空",
		})
		return
	}

	user, ok := currentUser(c)
	if !ok {
		return
	}

	comment, err := h.messageService.AddComment(uint(messageID), user.Username, req.Comment)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": comment, "message": "success"})
}

// ListComments 列出某条消息的全部评论。
func (h *MessageHandler) ListComments(c *gin.Context) {
	messageID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的消息 ID",
		})
		return
	}

	comments, err := h.messageService.ListComments(uint(messageID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "获取评论失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": comments, "message": "success"})
}

// Live 处理 WebSocket 实时消息流：按固定间隔轮询新消息并推给客户端。
// token 放在路径参数中，因为浏览器的 WebSocket API 无法自定义请求头。
func (h *MessageHandler) Live(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	user, err := h.userService.GetProfile(claims.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
		return
	}

	mode := c.DefaultQuery("mode", model.MessageModePublic)
	if mode != model.MessageModePublic && mode != model.MessageModePrivate {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "未知的消息类型", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("消息流 WebSocket 连接已建立，用户: %s, 模式: %s", user.Username, mode)

	interval := time.Duration(config.Conf.Messenger.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	// 先推一次全量，再按间隔推增量
	var lastID uint
	messages, err := h.messageService.Feed(mode, user.Username, 0)
	if err != nil {
		log.Errorf("消息流初始加载失败, user=%s: %v", user.Username, err)
	} else {
		if len(messages) > 0 {
			lastID = messages[len(messages)-1].ID
		}
		if err := conn.WriteJSON(messages); err != nil {
			return
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// 读泵只为感知客户端断开
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			log.Infof("消息流 WebSocket 连接已关闭，用户: %s", user.Username)
			return
		case <-ticker.C:
			fresh, err := h.messageService.Feed(mode, user.Username, lastID)
			if err != nil {
				log.Warnf("消息流轮询失败, user=%s: %v", user.Username, err)
				continue
			}
			if len(fresh) == 0 {
				continue
			}
			lastID = fresh[len(fresh)-1].ID
			if err := conn.WriteJSON(fresh); err != nil {
				return
			}
		}
	}
}
