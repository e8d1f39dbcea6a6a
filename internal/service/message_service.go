// Package service 包含了应用的业务逻辑层。
package service

import (
	"errors"
	"strings"

	"amazing-kissan-go/internal/model"
	"amazing-kissan-go/internal/repository"
)

// MessageService 定义了留言板的业务操作。
type MessageService interface {
	// Post 发布一条消息。私信模式必须指定接收方。
	Post(sender, receiver, text, mode string) (*model.Message, error)
	// Feed 列出某个可见范围的消息；afterID 大于 0 时只返回更新的部分，
	// 供客户端按固定间隔轮询。
	Feed(mode, username string, afterID uint) ([]model.Message, error)
	// Like 给消息点赞并返回最新点赞数。
	Like(messageID uint) (int, error)
	AddComment(messageID uint, commenter, text string) (*model.Comment, error)
	ListComments(messageID uint) ([]model.Comment, error)
}

type messageService struct {
	messageRepo repository.MessageRepository
}

// NewMessageService 创建一个新的 MessageService 实例。
func NewMessageService(messageRepo repository.MessageRepository) MessageService {
	return &messageService{messageRepo: messageRepo}
}

// Post 校验并写入一条消息。
func (s *messageService) Post(sender, receiver, text, mode string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("消息内容不能为空")
	}
	if mode != model.MessageModePublic && mode != model.MessageModePrivate {
		return nil, errors.New("未知的消息类型")
	}
	if mode == model.MessageModePrivate && strings.TrimSpace(receiver) == "" {
		return nil, errors.New("私信必须指定接收方")
	}
	if mode == model.MessageModePublic {
		receiver = ""
	}

	message := &model.Message{
		Mode:     mode,
		Sender:   sender,
		Receiver: strings.TrimSpace(receiver),
		Message:  text,
	}
	if err := s.messageRepo.Create(message); err != nil {
		return nil, err
	}
	return message, nil
}

// Feed 返回消息流，afterID 用于增量轮询。
func (s *messageService) Feed(mode, username string, afterID uint) ([]model.Message, error) {
	if mode == "" {
		mode = model.MessageModePublic
	}
	if afterID > 0 {
		return s.messageRepo.ListAfter(mode, username, afterID)
	}
	return s.messageRepo.ListByMode(mode, username)
}

// Like 点赞并取回最新计数。
func (s *messageService) Like(messageID uint) (int, error) {
	if err := s.messageRepo.IncrementLikes(messageID); err != nil {
		return 0, err
	}
	message, err := s.messageRepo.FindByID(messageID)
	if err != nil {
		return 0, err
	}
	return message.Likes, nil
}

// AddComment 在消息下追加一条评论。
func (s *messageService) AddComment(messageID uint, commenter, text string) (*model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("评论内容不能为空")
	}
	// 目标消息不存在视为空结果，不作为异常处理
	if _, err := s.messageRepo.FindByID(messageID); err != nil {
		return nil, errors.New("消息不存在")
	}

	comment := &model.Comment{
		MessageID: messageID,
		Commenter: commenter,
		Comment:   text,
	}
	if err := s.messageRepo.CreateComment(comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// ListComments 列出某条消息的全部评论。
func (s *messageService) ListComments(messageID uint) ([]model.Comment, error) {
	return s.messageRepo.ListComments(messageID)
}
