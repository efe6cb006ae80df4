package memory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webmail/backend/internal/domain"
)

func newUser(t *testing.T, s *Store, email, token string) *domain.User {
	t.Helper()
	now := time.Now()
	user := &domain.User{
		ID:        uuid.New().String(),
		FullName:  "Test User",
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if token != "" {
		user.Token = token
		expires := now.Add(time.Hour)
		user.TokenExpiresAt = &expires
	}
	require.NoError(t, s.CreateUser(user))
	return user
}

func newMessage(t *testing.T, s *Store, senderID, recipientID string) *domain.Message {
	t.Helper()
	m := &domain.Message{
		ID:          uuid.New().String(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Subject:     "subject",
		Body:        "body",
		SentAt:      time.Now(),
	}
	require.NoError(t, s.CreateMessage(m))
	return m
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := NewStore()
	newUser(t, s, "a@example.com", "")

	err := s.CreateUser(&domain.User{ID: uuid.New().String(), Email: "a@example.com"})
	assert.ErrorIs(t, err, domain.ErrEmailExists)
}

func TestGetUserWithLiveToken(t *testing.T) {
	s := NewStore()
	user := newUser(t, s, "a@example.com", "tok-1")

	got, err := s.GetUserWithLiveToken("a@example.com", time.Now())
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	// 过期行对这条查询不可见
	_, err = s.GetUserWithLiveToken("a@example.com", time.Now().Add(2*time.Hour))
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	// 从未登录的用户没有有效令牌
	newUser(t, s, "b@example.com", "")
	_, err = s.GetUserWithLiveToken("b@example.com", time.Now())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestTokenInUseSeesExpiredRows(t *testing.T) {
	s := NewStore()
	user := newUser(t, s, "a@example.com", "tok-1")

	// 把令牌过期掉，唯一性检查仍须看到它
	require.NoError(t, s.UpdateUserToken(user.ID, "tok-1", time.Now().Add(-time.Hour)))

	inUse, err := s.TokenInUse("tok-1")
	require.NoError(t, err)
	assert.True(t, inUse)

	inUse, err = s.TokenInUse("tok-2")
	require.NoError(t, err)
	assert.False(t, inUse)
}

func TestUpdateUserTokenUnknownUser(t *testing.T) {
	s := NewStore()
	err := s.UpdateUserToken(uuid.New().String(), "tok", time.Now())
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestGetUsersByIDsSkipsMissing(t *testing.T) {
	s := NewStore()
	a := newUser(t, s, "a@example.com", "")
	b := newUser(t, s, "b@example.com", "")

	users, err := s.GetUsersByIDs([]string{a.ID, b.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Contains(t, users, a.ID)
	assert.Contains(t, users, b.ID)
}

func TestReadsReturnClones(t *testing.T) {
	s := NewStore()
	user := newUser(t, s, "a@example.com", "")

	got, err := s.GetUserByID(user.ID)
	require.NoError(t, err)
	got.FullName = "mutated"

	again, err := s.GetUserByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test User", again.FullName, "callers must not be able to mutate stored state")
}

func TestInboxOutboxViews(t *testing.T) {
	s := NewStore()
	alice := newUser(t, s, "a@example.com", "")
	bob := newUser(t, s, "b@example.com", "")
	m := newMessage(t, s, alice.ID, bob.ID)

	inbox, err := s.ListInbox(bob.ID)
	require.NoError(t, err)
	assert.Len(t, inbox, 1)

	outbox, err := s.ListOutbox(alice.ID)
	require.NoError(t, err)
	assert.Len(t, outbox, 1)

	// 单方删除后该方的列表与点查都不可见
	res, err := s.DeleteMessageForRecipient(m.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, res.Purged)

	inbox, err = s.ListInbox(bob.ID)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	_, err = s.GetInboxMessage(m.ID, bob.ID)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)

	// 对方仍然可见
	got, err := s.GetOutboxMessage(m.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
}

func TestSecondDeletePurges(t *testing.T) {
	s := NewStore()
	alice := newUser(t, s, "a@example.com", "")
	bob := newUser(t, s, "b@example.com", "")

	m := &domain.Message{
		ID:                   uuid.New().String(),
		SenderID:             alice.ID,
		RecipientID:          bob.ID,
		AttachmentStoredName: "stored-1",
		SentAt:               time.Now(),
	}
	require.NoError(t, s.CreateMessage(m))

	res, err := s.DeleteMessageForSender(m.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, res.Purged)

	res, err = s.DeleteMessageForRecipient(m.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, res.Purged)
	assert.Equal(t, "stored-1", res.AttachmentStoredName)

	_, err = s.GetMessage(m.ID)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)

	// 记录已物理删除，再删报不存在
	_, err = s.DeleteMessageForRecipient(m.ID, bob.ID)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestDeleteWrongOwner(t *testing.T) {
	s := NewStore()
	alice := newUser(t, s, "a@example.com", "")
	bob := newUser(t, s, "b@example.com", "")
	m := newMessage(t, s, alice.ID, bob.ID)

	// 收件人不能走发件人通道，反之亦然
	_, err := s.DeleteMessageForSender(m.ID, bob.ID)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	_, err = s.DeleteMessageForRecipient(m.ID, alice.ID)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestGetMessageParticipants(t *testing.T) {
	s := NewStore()
	alice := newUser(t, s, "a@example.com", "tok-a")
	bob := newUser(t, s, "b@example.com", "tok-b")

	m := &domain.Message{
		ID:                     uuid.New().String(),
		SenderID:               alice.ID,
		RecipientID:            bob.ID,
		AttachmentOriginalName: "report.pdf",
		AttachmentStoredName:   "stored-1",
		SentAt:                 time.Now(),
	}
	require.NoError(t, s.CreateMessage(m))

	info, err := s.GetMessageParticipants(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", info.SenderEmail)
	assert.Equal(t, "tok-a", info.SenderToken)
	assert.Equal(t, "b@example.com", info.RecipientEmail)
	assert.Equal(t, "tok-b", info.RecipientToken)
	assert.Equal(t, "report.pdf", info.AttachmentOriginalName)
	assert.Equal(t, "stored-1", info.AttachmentStoredName)
}
