// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strings"

	"amazing-kissan-go/internal/model"
	"amazing-kissan-go/internal/service"
	"amazing-kissan-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UserHandler 负责处理所有与普通用户相关的 API 请求。
type UserHandler struct {
	userService    service.UserService
	sessionService service.SessionService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService, sessionService service.SessionService) *UserHandler {
	return &UserHandler{userService: userService, sessionService: sessionService}
}

// RegisterRequest 定义了用户注册 API 的请求体结构。
type RegisterRequest struct {
	Username        string `json:"username" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
	Name            string `json:"name" binding:"required"`
	Email           string `json:"email" binding:"required"`
	Phone           string `json:"phone" binding:"required"`
	Address         string `json:"address" binding:"required"`
	DOB             string `json:"dob" binding:"required"`
}

// Register 处理用户注册请求。
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	// 绑定并验证 JSON 请求体
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Register: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：注册信息不完整",
		})
		return
	}

	// 调用 service 层执行注册逻辑
	user, err := h.userService.Register(service.RegisterInput{
		Username:        req.Username,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Name:            req.Name,
		Email:           req.Email,
		Phone:           req.Phone,
		Address:         req.Address,
		DOB:             req.DOB,
	})
	if err != nil {
		log.Warnf("Register: User registration failed for '%s', error: %v", req.Username, err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	log.Infof("User '%s' registered successfully", user.Username)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "User registered successfully",
	})
}

// LoginRequest 定义了用户登录 API 的请求体结构。
// identifier 支持用户名或邮箱。
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// Login 处理用户登录请求。
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：用户名和密码不能为空",
		})
		return
	}

	// 调用 service 层执行登录逻辑
	accessToken, refreshToken, err := h.userService.Login(req.Identifier, req.Password)
	if err != nil {
		log.Warnf("Login: User authentication failed for '%s', error: %v", req.Identifier, err)
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": "无效的凭证",
		})
		return
	}

	log.Infof("User '%s' logged in successfully", req.Identifier)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "Login successful",
		"data": gin.H{
			"token":        accessToken,
			"refreshToken": refreshToken,
		},
	})
}

// GetProfile 获取当前登录用户的个人信息。
// 用户信息已经由 AuthMiddleware 注入到上下文中。
func (h *UserHandler) GetProfile(c *gin.Context) {
	// 从上下文中获取由 AuthMiddleware 注入的 User 对象
	user, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": user, "message": "success"})
}

// UpdateProfileRequest 定义了更新档案 API 的请求体结构，所有字段可选。
type UpdateProfileRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	DOB     string `json:"dob"`
}

// UpdateProfile 更新当前登录用户的档案。
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("UpdateProfile: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载",
		})
		return
	}

	user, ok := currentUser(c)
	if !ok {
		return
	}

	updated, err := h.userService.UpdateProfile(user.Username, req.Name, req.Email, req.Phone, req.Address, req.DOB)
	if err != nil {
		log.Warnf("UpdateProfile: Failed for user '%s', error: %v", user.Username, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
		return
	}

	log.Infof("User '%s' updated profile", user.Username)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": updated, "message": "档案更新成功"})
}

// Logout 处理用户登出逻辑：token 进入黑名单，会话状态一并丢弃。
func (h *UserHandler) Logout(c *gin.Context) {
	authHeader := c.GetHeader("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	err := h.userService.Logout(tokenString)
	if err != nil {
		log.Error("Logout: Failed to logout", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "登出失败",
		})
		return
	}

	user, ok := currentUser(c)
	if !ok {
		return
	}
	// 登出即结束会话：内存中的话题缓存与未命名的缓冲随之丢弃
	if err := h.sessionService.EndSession(c.Request.Context(), userSessionID(user.Username)); err != nil {
		log.Warnf("Logout: Failed to end session for '%s', error: %v", user.Username, err)
	}

	log.Infof("User '%s' logged out successfully", user.Username)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "登出成功"})
}

// ForgotPasswordRequest 定义了找回密码 API 的请求体结构。
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// ForgotPassword 给注册邮箱发送六位重置验证码。
func (h *UserHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("ForgotPassword: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：email 不能为空",
		})
		return
	}

	if err := h.userService.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		log.Warnf("ForgotPassword: Failed for '%s', error: %v", req.Email, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "验证码已发送到注册邮箱",
	})
}

// VerifyResetCodeRequest 定义了校验验证码 API 的请求体结构。
type VerifyResetCodeRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// VerifyResetCode 核对重置验证码。
func (h *UserHandler) VerifyResetCode(c *gin.Context) {
	var req VerifyResetCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("VerifyResetCode: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载",
		})
		return
	}

	if err := h.userService.VerifyResetCode(c.Request.Context(), req.Email, req.Code); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "验证码正确"})
}

// ResetPasswordRequest 定义了重置密码 API 的请求体结构。
type ResetPasswordRequest struct {
	Email           string `json:"email" binding:"required"`
	Code            string `json:"code" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

// ResetPassword 校验验证码后更新密码。
func (h *UserHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("ResetPassword: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载",
		})
		return
	}

	if err := h.userService.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword, req.ConfirmPassword); err != nil {
		log.Warnf("ResetPassword: Failed for '%s', error: %v", req.Email, err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": err.Error(),
		})
		return
	}

	log.Infof("Password reset completed for email '%s'", req.Email)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "密码重置成功"})
}

// currentUser 从上下文中取出 AuthMiddleware 注入的 User 对象。
// 取不到时直接写入错误响应并返回 false。
func currentUser(c *gin.Context) (*model.User, bool) {
	userValue, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": "未认证用户或无法获取用户信息",
		})
		return nil, false
	}
	user, ok := userValue.(*model.User)
	if !ok || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "用户数据类型错误",
		})
		return nil, false
	}
	return user, true
}

// userSessionID 是已登录用户的固定会话键。
func userSessionID(username string) string {
	return "user:" + username
}

// guestSessionID 给客户端提供的游客标识加上命名空间，
// 保证游客永远落不到任何登录用户的会话键上。
func guestSessionID(id string) string {
	return "guest:" + id
}
