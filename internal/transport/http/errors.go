package httptransport

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest   = "请求参数格式错误"
	MsgRequestBodyEmpty = "请求体不能为空"

	// 认证相关
	MsgAuthRequired       = "需要登录认证"
	MsgInvalidCredentials = "邮箱或密码错误"
	MsgTooManyAttempts    = "登录尝试过于频繁，请稍后重试"

	// 注册相关
	MsgSignupFailed = "注册失败"

	// 邮件相关
	MsgMessageCreateFailed = "发送邮件失败"
	MsgMessageNotFound     = "邮件不存在"
	MsgMessageListFailed   = "获取邮件列表失败"
	MsgMessageDeleteFailed = "删除邮件失败"
	MsgRecipientNotFound   = "收件人不存在"

	// 附件相关
	MsgAttachmentNotFound  = "附件不存在"
	MsgAttachmentForbidden = "无权访问该附件"
	MsgAttachmentTooLarge  = "附件超过大小限制"

	// 用户相关
	MsgUserListFailed = "获取用户列表失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
