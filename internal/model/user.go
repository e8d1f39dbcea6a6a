// Package model 包含了应用的数据模型定义。
package model

import "time"

// User 对应于数据库中的 'users' 表，保存农户的账号与档案信息。
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"type:varchar(255);not null" json:"-"`
	Name      string    `gorm:"type:varchar(100)" json:"name"`
	Email     string    `gorm:"type:varchar(255);index" json:"email"`
	Phone     string    `gorm:"type:varchar(32)" json:"phone"`
	Address   string    `gorm:"type:varchar(255)" json:"address"`
	DOB       string    `gorm:"type:varchar(16)" json:"dob"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}
