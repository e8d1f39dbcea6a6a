// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"amazing-kissan-go/internal/model"
	"amazing-kissan-go/internal/repository"
	"amazing-kissan-go/pkg/database"
	"amazing-kissan-go/pkg/hash"
	"amazing-kissan-go/pkg/log"
	"amazing-kissan-go/pkg/mailer"
	"amazing-kissan-go/pkg/token"

	"gorm.io/gorm"
)

// 重置验证码的有效期。
const resetCodeTTL = 10 * time.Minute

var phonePattern = regexp.MustCompile(`^\+?\d{1,3}?\d{10}$`)

// RegisterInput 是注册时提交的完整档案。
type RegisterInput struct {
	Username        string
	Password        string
	ConfirmPassword string
	Name            string
	Email           string
	Phone           string
	Address         string
	DOB             string
}

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(input RegisterInput) (*model.User, error)
	Login(identifier, password string) (accessToken, refreshToken string, err error)
	GetProfile(username string) (*model.User, error)
	UpdateProfile(username string, name, email, phone, address, dob string) (*model.User, error)
	Logout(tokenString string) error
	RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
	RequestPasswordReset(ctx context.Context, email string) error
	VerifyResetCode(ctx context.Context, email, code string) error
	ResetPassword(ctx context.Context, email, code, newPassword, confirmPassword string) error
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	jwtManager *token.JWTManager
	mail       *mailer.Mailer
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, jwtManager *token.JWTManager, mail *mailer.Mailer) UserService {
	return &userService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		mail:       mail,
	}
}

// Register 处理用户注册的业务逻辑。
// 所有字段校验在任何外部调用之前完成，校验失败不改变任何状态。
func (s *userService) Register(input RegisterInput) (*model.User, error) {
	// 1. 字段校验
	if err := validateRegister(input); err != nil {
		return nil, err
	}

	// 2. 检查用户名是否已存在
	_, err := s.userRepo.FindByUsername(input.Username)
	if err == nil {
		return nil, errors.New("用户名已存在")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 3. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	// 4. 创建新用户
	newUser := &model.User{
		Username: strings.TrimSpace(input.Username),
		Password: hashedPassword,
		Name:     strings.TrimSpace(input.Name),
		Email:    strings.TrimSpace(input.Email),
		Phone:    strings.TrimSpace(input.Phone),
		Address:  strings.TrimSpace(input.Address),
		DOB:      strings.TrimSpace(input.DOB),
	}
	if err := s.userRepo.Create(newUser); err != nil {
		log.Errorf("[UserService] 创建用户失败, username: %s, error: %v", input.Username, err)
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}

	return newUser, nil
}

func validateRegister(input RegisterInput) error {
	if strings.TrimSpace(input.Username) == "" || input.Password == "" {
		return errors.New("用户名和密码不能为空")
	}
	if input.Password != input.ConfirmPassword {
		return errors.New("两次输入的密码不一致")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(input.Email)); err != nil {
		return errors.New("邮箱格式不正确")
	}
	if !phonePattern.MatchString(strings.TrimSpace(input.Phone)) {
		return errors.New("手机号格式不正确")
	}
	if strings.TrimSpace(input.Address) == "" || strings.TrimSpace(input.DOB) == "" {
		return errors.New("地址和出生日期不能为空")
	}
	return nil
}

// Login 处理用户登录的业务逻辑，支持用户名或邮箱。
func (s *userService) Login(identifier, password string) (accessToken, refreshToken string, err error) {
	// 1. 查找用户
	user, err := s.userRepo.FindByUsernameOrEmail(strings.TrimSpace(identifier))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", errors.New("invalid credentials")
		}
		return "", "", err
	}

	// 2. 验证密码
	if !hash.CheckPasswordHash(password, user.Password) {
		return "", "", errors.New("invalid credentials")
	}

	// 3. 生成 access token 和 refresh token
	accessToken, err = s.jwtManager.GenerateToken(user.ID, user.Username, "USER")
	if err != nil {
		return "", "", err
	}
	refreshToken, err = s.jwtManager.GenerateRefreshToken(user.ID, user.Username, "USER")
	if err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

// GetProfile 根据用户名获取用户详细信息。
func (s *userService) GetProfile(username string) (*model.User, error) {
	return s.userRepo.FindByUsername(username)
}

// UpdateProfile 更新用户档案（用户名与密码除外）。
func (s *userService) UpdateProfile(username string, name, email, phone, address, dob string) (*model.User, error) {
	user, err := s.userRepo.FindByUsername(username)
	if err != nil {
		return nil, err
	}

	if email != "" {
		if _, err := mail.ParseAddress(strings.TrimSpace(email)); err != nil {
			return nil, errors.New("邮箱格式不正确")
		}
		user.Email = strings.TrimSpace(email)
	}
	if phone != "" {
		if !phonePattern.MatchString(strings.TrimSpace(phone)) {
			return nil, errors.New("手机号格式不正确")
		}
		user.Phone = strings.TrimSpace(phone)
	}
	if name != "" {
		user.Name = strings.TrimSpace(name)
	}
	if address != "" {
		user.Address = strings.TrimSpace(address)
	}
	if dob != "" {
		user.DOB = strings.TrimSpace(dob)
	}

	if err := s.userRepo.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Logout 处理用户登出逻辑，将 token 加入 Redis 黑名单。
func (s *userService) Logout(tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return err
	}
	// token 的剩余有效期作为 Redis key 的过期时间
	expiration := time.Until(claims.ExpiresAt.Time)
	return database.RDB.Set(context.Background(), "blacklist:"+tokenString, "true", expiration).Err()
}

// RefreshToken 验证 refresh token 并签发新的 access token 和 refresh token。
func (s *userService) RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error) {
	claims, err := s.jwtManager.VerifyToken(refreshTokenString)
	if err != nil {
		return "", "", errors.New("invalid refresh token")
	}

	user, err := s.userRepo.FindByUsername(claims.Username)
	if err != nil {
		return "", "", errors.New("user not found")
	}

	newAccessToken, err = s.jwtManager.GenerateToken(user.ID, user.Username, "USER")
	if err != nil {
		return "", "", err
	}
	newRefreshToken, err = s.jwtManager.GenerateRefreshToken(user.ID, user.Username, "USER")
	if err != nil {
		return "", "", err
	}

	return newAccessToken, newRefreshToken, nil
}

func resetCodeKey(email string) string {
	return "reset_code:" + strings.ToLower(strings.TrimSpace(email))
}

// RequestPasswordReset 生成六位验证码，存入 Redis 并发送到注册邮箱。
func (s *userService) RequestPasswordReset(ctx context.Context, email string) error {
	_, err := s.userRepo.FindByEmail(strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New("该邮箱未注册")
		}
		return err
	}

	code := fmt.Sprintf("%06d", rand.Intn(1000000))
	if err := database.RDB.Set(ctx, resetCodeKey(email), code, resetCodeTTL).Err(); err != nil {
		return fmt.Errorf("保存验证码失败: %w", err)
	}

	if err := s.mail.SendResetCode(strings.TrimSpace(email), code); err != nil {
		log.Errorf("[UserService] 发送重置验证码失败, email: %s, error: %v", email, err)
		return errors.New("验证码发送失败，请稍后重试")
	}
	return nil
}

// VerifyResetCode 核对验证码。
func (s *userService) VerifyResetCode(ctx context.Context, email, code string) error {
	stored, err := database.RDB.Get(ctx, resetCodeKey(email)).Result()
	if err != nil || stored == "" || stored != strings.TrimSpace(code) {
		return errors.New("验证码无效或已过期")
	}
	return nil
}

// ResetPassword 校验验证码后更新密码并使验证码失效。
func (s *userService) ResetPassword(ctx context.Context, email, code, newPassword, confirmPassword string) error {
	if newPassword == "" || newPassword != confirmPassword {
		return errors.New("两次输入的密码不一致")
	}
	if err := s.VerifyResetCode(ctx, email, code); err != nil {
		return err
	}

	user, err := s.userRepo.FindByEmail(strings.TrimSpace(email))
	if err != nil {
		return errors.New("该邮箱未注册")
	}

	hashedPassword, err := hash.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePassword(user.Username, hashedPassword); err != nil {
		return fmt.Errorf("更新密码失败: %w", err)
	}

	_ = database.RDB.Del(ctx, resetCodeKey(email)).Err()
	return nil
}
