package domain

import "time"

// Message 表示发件人与收件人共享的一封站内邮件。
//
// 同一条记录同时出现在发件人的发件箱与收件人的收件箱中，双方各自持有
// 一个软删除标记。只有当两个标记同时为真时，记录和附件文件才会被物理
// 删除（purge）——单方删除永远不会移除数据。
type Message struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SenderID    string    `json:"senderId" gorm:"type:varchar(36);index;not null"`
	RecipientID string    `json:"recipientId" gorm:"type:varchar(36);index;not null"`
	Subject     string    `json:"subject" gorm:"type:varchar(255)"`
	Body        string    `json:"body" gorm:"type:text"`
	SentAt      time.Time `json:"sentAt"`
	// 附件字段在创建时一次性写入，之后不再变更。
	AttachmentOriginalName string `json:"attachmentOriginalName,omitempty" gorm:"type:varchar(255)"`
	AttachmentStoredName   string `json:"-" gorm:"type:varchar(64)"` // 磁盘上的不透明文件名
	// 双方独立的软删除标记。
	DeletedBySender    bool `json:"-" gorm:"default:false;index"`
	DeletedByRecipient bool `json:"-" gorm:"default:false;index"`
	// 读侧补充的对方展示信息（不入库，列表查询时联表填充）。
	SenderFullName    string `json:"senderFullName,omitempty" gorm:"-"`
	SenderEmail       string `json:"senderEmail,omitempty" gorm:"-"`
	RecipientFullName string `json:"recipientFullName,omitempty" gorm:"-"`
	RecipientEmail    string `json:"recipientEmail,omitempty" gorm:"-"`
}

// HasAttachment 判断邮件是否带有附件。
func (m *Message) HasAttachment() bool {
	return m.AttachmentStoredName != ""
}

// DeleteResult 描述一次单方删除的存储层结果。
type DeleteResult struct {
	Purged               bool   // 本次调用是否触发了物理删除
	AttachmentStoredName string // 被删除记录的附件文件名（可能为空）
}

// MessageParticipants 是附件鉴权所需的单次读取视图：邮件的附件字段
// 以及双方当前存储的 (email, token) 凭证对。
type MessageParticipants struct {
	MessageID              string
	AttachmentOriginalName string
	AttachmentStoredName   string
	SenderEmail            string
	SenderToken            string
	RecipientEmail         string
	RecipientToken         string
}
