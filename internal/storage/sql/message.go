package sql

import (
	"database/sql"
	"errors"
	"fmt"

	"webmail/backend/internal/domain"
)

// ========== Message Repository ==========

const messageColumns = `id, sender_id, recipient_id, subject, body, sent_at,
	attachment_original_name, attachment_stored_name, deleted_by_sender, deleted_by_recipient`

// scanMessage 从单行结果扫描邮件，处理可空的附件字段。
func scanMessage(row interface{ Scan(dest ...any) error }) (*domain.Message, error) {
	var m domain.Message
	var attOriginal, attStored sql.NullString

	err := row.Scan(
		&m.ID,
		&m.SenderID,
		&m.RecipientID,
		&m.Subject,
		&m.Body,
		&m.SentAt,
		&attOriginal,
		&attStored,
		&m.DeletedBySender,
		&m.DeletedByRecipient,
	)
	if err != nil {
		return nil, err
	}

	if attOriginal.Valid {
		m.AttachmentOriginalName = attOriginal.String
	}
	if attStored.Valid {
		m.AttachmentStoredName = attStored.String
	}
	return &m, nil
}

// nullable 将空串映射为 NULL，保持附件列的可空语义。
func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// CreateMessage 保存新邮件。
func (s *Store) CreateMessage(message *domain.Message) error {
	query := s.rebind(`
		INSERT INTO messages (id, sender_id, recipient_id, subject, body, sent_at,
			attachment_original_name, attachment_stored_name, deleted_by_sender, deleted_by_recipient)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	result, err := s.db.Exec(query,
		message.ID,
		message.SenderID,
		message.RecipientID,
		message.Subject,
		message.Body,
		message.SentAt,
		nullable(message.AttachmentOriginalName),
		nullable(message.AttachmentStoredName),
		message.DeletedBySender,
		message.DeletedByRecipient,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("insert reported no new row")
	}
	return nil
}

// ListInbox 返回收件人未软删除的全部邮件。
func (s *Store) ListInbox(recipientID string) ([]domain.Message, error) {
	query := s.rebind(`SELECT ` + messageColumns + ` FROM messages WHERE recipient_id = ? AND deleted_by_recipient = FALSE`)
	return s.listMessages(query, recipientID)
}

// ListOutbox 返回发件人未软删除的全部邮件。
func (s *Store) ListOutbox(senderID string) ([]domain.Message, error) {
	query := s.rebind(`SELECT ` + messageColumns + ` FROM messages WHERE sender_id = ? AND deleted_by_sender = FALSE`)
	return s.listMessages(query, senderID)
}

func (s *Store) listMessages(query string, args ...any) ([]domain.Message, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// GetInboxMessage 按 (id, recipientID) 获取邮件，无匹配时返回 ErrMessageNotFound。
func (s *Store) GetInboxMessage(id, recipientID string) (*domain.Message, error) {
	query := s.rebind(`SELECT ` + messageColumns + ` FROM messages WHERE id = ? AND recipient_id = ? AND deleted_by_recipient = FALSE`)
	m, err := scanMessage(s.db.QueryRow(query, id, recipientID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	return m, err
}

// GetOutboxMessage 按 (id, senderID) 获取邮件，无匹配时返回 ErrMessageNotFound。
func (s *Store) GetOutboxMessage(id, senderID string) (*domain.Message, error) {
	query := s.rebind(`SELECT ` + messageColumns + ` FROM messages WHERE id = ? AND sender_id = ? AND deleted_by_sender = FALSE`)
	m, err := scanMessage(s.db.QueryRow(query, id, senderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	return m, err
}

// GetMessage 按 ID 获取邮件（不限定归属方）。
func (s *Store) GetMessage(id string) (*domain.Message, error) {
	query := s.rebind(`SELECT ` + messageColumns + ` FROM messages WHERE id = ?`)
	m, err := scanMessage(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	return m, err
}

// DeleteMessageForSender 将邮件标记为发件人已删除；若收件人也已删除
// 则在同一事务内物理移除记录。
func (s *Store) DeleteMessageForSender(id, senderID string) (domain.DeleteResult, error) {
	return s.deleteMessageForParty(id, senderID, "sender_id", "deleted_by_sender")
}

// DeleteMessageForRecipient 将邮件标记为收件人已删除；若发件人也已删除
// 则在同一事务内物理移除记录。
func (s *Store) DeleteMessageForRecipient(id, recipientID string) (domain.DeleteResult, error) {
	return s.deleteMessageForParty(id, recipientID, "recipient_id", "deleted_by_recipient")
}

// deleteMessageForParty 执行单方删除的两阶段转移。
//
// SELECT ... FOR UPDATE 对目标行加锁，使并发的发件人删除与收件人删除
// 串行化；随后的条件 DELETE 以两个标记同时为真为键，先到者删除行，
// 后到者的 DELETE 找不到行——物理删除至多发生一次。整个转移在一个
// 事务内提交，崩溃时要么全部生效要么全部回滚。
func (s *Store) deleteMessageForParty(id, ownerID, ownerColumn, ownFlagColumn string) (domain.DeleteResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return domain.DeleteResult{}, err
	}
	defer tx.Rollback()

	selectQuery := s.rebind(`SELECT attachment_stored_name FROM messages WHERE id = ? AND ` + ownerColumn + ` = ? FOR UPDATE`)
	var attStored sql.NullString
	err = tx.QueryRow(selectQuery, id, ownerID).Scan(&attStored)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DeleteResult{}, domain.ErrMessageNotFound
	}
	if err != nil {
		return domain.DeleteResult{}, err
	}

	updateQuery := s.rebind(`UPDATE messages SET ` + ownFlagColumn + ` = TRUE WHERE id = ?`)
	if _, err := tx.Exec(updateQuery, id); err != nil {
		return domain.DeleteResult{}, err
	}

	deleteQuery := s.rebind(`DELETE FROM messages WHERE id = ? AND deleted_by_sender = TRUE AND deleted_by_recipient = TRUE`)
	result, err := tx.Exec(deleteQuery, id)
	if err != nil {
		return domain.DeleteResult{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.DeleteResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.DeleteResult{}, err
	}

	if affected > 0 {
		return domain.DeleteResult{Purged: true, AttachmentStoredName: attStored.String}, nil
	}
	return domain.DeleteResult{}, nil
}

// GetMessageParticipants 联表返回附件鉴权所需的单次读取视图。
// 用户行缺失时对应凭证字段留空。
func (s *Store) GetMessageParticipants(id string) (*domain.MessageParticipants, error) {
	query := s.rebind(`
		SELECT m.id, m.attachment_original_name, m.attachment_stored_name,
		       COALESCE(u1.email, ''), COALESCE(u1.token, ''),
		       COALESCE(u2.email, ''), COALESCE(u2.token, '')
		FROM messages m
		LEFT JOIN users u1 ON m.sender_id = u1.id
		LEFT JOIN users u2 ON m.recipient_id = u2.id
		WHERE m.id = ?
	`)

	var info domain.MessageParticipants
	var attOriginal, attStored sql.NullString
	err := s.db.QueryRow(query, id).Scan(
		&info.MessageID,
		&attOriginal,
		&attStored,
		&info.SenderEmail,
		&info.SenderToken,
		&info.RecipientEmail,
		&info.RecipientToken,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}

	if attOriginal.Valid {
		info.AttachmentOriginalName = attOriginal.String
	}
	if attStored.Valid {
		info.AttachmentStoredName = attStored.String
	}
	return &info, nil
}
