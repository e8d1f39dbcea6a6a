// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"amazing-kissan-go/internal/model"

	"gorm.io/gorm"
)

// UserRepository 接口定义了用户数据的持久化操作。
type UserRepository interface {
	Create(user *model.User) error
	FindByUsername(username string) (*model.User, error)
	FindByEmail(email string) (*model.User, error)
	FindByUsernameOrEmail(identifier string) (*model.User, error)
	Update(user *model.User) error
	UpdatePassword(username, hashedPassword string) error
}

// userRepository 是 UserRepository 接口的 GORM 实现。
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建一个新的 UserRepository 实例。
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create 在数据库中创建一个新的用户记录。
func (r *userRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

// FindByUsername 根据用户名从数据库中查找一个用户。
func (r *userRepository) FindByUsername(username string) (*model.User, error) {
	var user model.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail 根据邮箱从数据库中查找一个用户。
func (r *userRepository) FindByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByUsernameOrEmail 支持用户名或邮箱登录的查找。
func (r *userRepository) FindByUsernameOrEmail(identifier string) (*model.User, error) {
	var user model.User
	err := r.db.Where("username = ? OR email = ?", identifier, identifier).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update 更新数据库中一个已存在的用户记录。
func (r *userRepository) Update(user *model.User) error {
	return r.db.Save(user).Error
}

// UpdatePassword 按用户名定位并更新密码哈希。
// 使用带条件的 UPDATE，而不是旧版"重取行号再改单元格"的方式。
func (r *userRepository) UpdatePassword(username, hashedPassword string) error {
	return r.db.Model(&model.User{}).
		Where("username = ?", username).
		Update("password", hashedPassword).Error
}
