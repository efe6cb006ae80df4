package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"webmail/backend/internal/domain"
)

// UserLister 用户列表存储接口
type UserLister interface {
	ListUsers() ([]domain.User, error)
}

// UserHandler 处理用户列表请求（写信页的收件人下拉选择）
type UserHandler struct {
	users UserLister
	log   *zap.Logger
}

// NewUserHandler 创建用户处理器
func NewUserHandler(users UserLister, log *zap.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

// List 返回全部注册用户的公开视图
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.ListUsers()
	if err != nil {
		h.log.Error("failed to list users", zap.Error(err))
		InternalError(c, MsgUserListFailed)
		return
	}

	profiles := make([]domain.Profile, 0, len(users))
	for i := range users {
		profiles = append(profiles, users[i].Profile())
	}
	Success(c, profiles)
}
