// Package mailer 提供了发送系统邮件（如密码重置验证码）的功能。
package mailer

import (
	"fmt"

	"amazing-kissan-go/internal/config"

	"gopkg.in/gomail.v2"
)

// Mailer 封装了 SMTP 发信能力。
type Mailer struct {
	cfg    config.MailConfig
	dialer *gomail.Dialer
}

// New 根据配置创建一个 Mailer。
func New(cfg config.MailConfig) *Mailer {
	return &Mailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// SendResetCode 向指定邮箱发送密码重置验证码。
func (m *Mailer) SendResetCode(to, code string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Password Reset Code")
	msg.SetBody("text/plain", fmt.Sprintf("Your verification code is: %s", code))

	return m.dialer.DialAndSend(msg)
}
