package domain

import "errors"

var (
	// ErrUserNotFound 用户不存在（或令牌已过期，二者对外不作区分）
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailExists 邮箱已被注册
	ErrEmailExists = errors.New("email already exists")
	// ErrMessageNotFound 邮件不存在或不属于调用方
	ErrMessageNotFound = errors.New("message not found or unauthorized")
	// ErrAttachmentNotFound 邮件没有附件
	ErrAttachmentNotFound = errors.New("attachment not found")
)
