package mailbox

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"webmail/backend/internal/domain"
	"webmail/backend/internal/storage/memory"
)

// countingBlobStore 记录每个存储名被删除的次数
type countingBlobStore struct {
	mu      sync.Mutex
	deleted map[string]int
	failErr error
}

func newCountingBlobStore() *countingBlobStore {
	return &countingBlobStore{deleted: make(map[string]int)}
}

func (b *countingBlobStore) Delete(storedName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failErr != nil {
		return b.failErr
	}
	b.deleted[storedName]++
	return nil
}

func (b *countingBlobStore) count(storedName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleted[storedName]
}

func newTestService(t *testing.T) (*Service, *memory.Store, *countingBlobStore) {
	t.Helper()
	store := memory.NewStore()
	blobs := newCountingBlobStore()
	return NewService(store, blobs, zap.NewNop()), store, blobs
}

func createTestUser(t *testing.T, store *memory.Store, fullName, email string) *domain.User {
	t.Helper()
	now := time.Now()
	user := &domain.User{
		ID:        uuid.New().String(),
		FullName:  fullName,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateUser(user))
	return user
}

func TestCreateMessage(t *testing.T) {
	svc, store, _ := newTestService(t)
	alice := createTestUser(t, store, "Alice", "alice@example.com")
	bob := createTestUser(t, store, "Bob", "bob@example.com")

	message, err := svc.CreateMessage(alice.ID, bob.ID, "Hi", "Hello Bob", "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, message.ID)

	// 同一条记录同时出现在双方视图中
	inbox, err := svc.ListInbox(bob.ID)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "Alice", inbox[0].SenderFullName)
	assert.Equal(t, "alice@example.com", inbox[0].SenderEmail)

	outbox, err := svc.ListOutbox(alice.ID)
	require.NoError(t, err)
	require.Len(t, outbox, 1)
	assert.Equal(t, "Bob", outbox[0].RecipientFullName)
}

func TestCreateMessageUnknownRecipient(t *testing.T) {
	svc, store, _ := newTestService(t)
	alice := createTestUser(t, store, "Alice", "alice@example.com")

	_, err := svc.CreateMessage(alice.ID, uuid.New().String(), "Hi", "body", "", "")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestListOrderedBySentAtDesc(t *testing.T) {
	svc, store, _ := newTestService(t)
	alice := createTestUser(t, store, "Alice", "alice@example.com")
	bob := createTestUser(t, store, "Bob", "bob@example.com")

	base := time.Now()
	for i, subject := range []string{"first", "second", "third"} {
		require.NoError(t, store.CreateMessage(&domain.Message{
			ID:          uuid.New().String(),
			SenderID:    alice.ID,
			RecipientID: bob.ID,
			Subject:     subject,
			SentAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}

	inbox, err := svc.ListInbox(bob.ID)
	require.NoError(t, err)
	require.Len(t, inbox, 3)
	assert.Equal(t, "third", inbox[0].Subject)
	assert.Equal(t, "first", inbox[2].Subject)
}

func TestPointLookupReturnsNilWhenMissing(t *testing.T) {
	svc, store, _ := newTestService(t)
	alice := createTestUser(t, store, "Alice", "alice@example.com")
	bob := createTestUser(t, store, "Bob", "bob@example.com")

	message, err := svc.CreateMessage(alice.ID, bob.ID, "Hi", "body", "", "")
	require.NoError(t, err)

	// 不存在的 ID 返回 (nil, nil) 而不是错误
	got, err := svc.GetInboxMessage(uuid.New().String(), bob.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// 他人的邮件同样不可见
	got, err = svc.GetInboxMessage(message.ID, alice.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// 归属正确时返回补充过双方信息的记录
	got, err = svc.GetInboxMessage(message.ID, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Alice", got.SenderFullName)
}

func TestSingleSidedDeleteKeepsOtherView(t *testing.T) {
	svc, store, _ := newTestService(t)
	alice := createTestUser(t, store, "Alice", "alice@example.com")
	bob := createTestUser(t, store, "Bob", "bob@example.com")

	message, err := svc.CreateMessage(alice.ID, bob.ID, "Hi", "body", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteForRecipient(message.ID, bob.ID))

	inbox, err := svc.ListInbox(bob.ID)
	require.NoError(t, err)
	assert.Empty(t, inbox, "message disappears from the deleting side")

	got, err := svc.GetInboxMessage(message.ID, bob.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	outbox, err := svc.ListOutbox(alice.ID)
	require.NoError(t, err)
	assert.Len(t, outbox, 1, "the other side still sees the message")
}

func TestBothSidesDeletePurgesRecordAndAttachment(t *testing.T) {
	svc, store, blobs := newTestService(t)
	alice := createTestUser(t, store, "Alice", "alice@example.com")
	bob := createTestUser(t, store, "Bob", "bob@example.com")

	message, err := svc.CreateMessage(alice.ID, bob.ID, "Hi", "body", "report.pdf", "stored-abc")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteForRecipient(message.ID, bob.ID))
	assert.Zero(t, blobs.count("stored-abc"), "single-sided delete must not touch the file")

	require.NoError(t, svc.DeleteForSender(message.ID, alice.ID))
	assert.Equal(t, 1, blobs.count("stored-abc"))

	_, err = store.GetMessage(message.ID)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestDeleteAfterPurgeReturnsNotFound(t *testing.T) {
	svc, store, _ := newTestService(t)
	alice := createTestUser(t, store, "Alice", "alice@example.com")
	bob := createTestUser(t, store, "Bob", "bob@example.com")

	message, err := svc.CreateMessage(alice.ID, bob.ID, "Hi", "body", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteForSender(message.ID, alice.ID))
	require.NoError(t, svc.DeleteForRecipient(message.ID, bob.ID))

	err = svc.DeleteForSender(message.ID, alice.ID)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestDeleteNotOwnMessage(t *testing.T) {
	svc, store, _ := newTestService(t)
	alice := createTestUser(t, store, "Alice", "alice@example.com")
	bob := createTestUser(t, store, "Bob", "bob@example.com")
	carol := createTestUser(t, store, "Carol", "carol@example.com")

	message, err := svc.CreateMessage(alice.ID, bob.ID, "Hi", "body", "", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteForSender(message.ID, carol.ID), domain.ErrMessageNotFound)
	assert.ErrorIs(t, svc.DeleteForRecipient(message.ID, carol.ID), domain.ErrMessageNotFound)
}

func TestBlobDeleteFailureDoesNotFailDelete(t *testing.T) {
	svc, store, blobs := newTestService(t)
	alice := createTestUser(t, store, "Alice", "alice@example.com")
	bob := createTestUser(t, store, "Bob", "bob@example.com")

	message, err := svc.CreateMessage(alice.ID, bob.ID, "Hi", "body", "report.pdf", "stored-xyz")
	require.NoError(t, err)

	blobs.failErr = errors.New("disk on fire")
	require.NoError(t, svc.DeleteForRecipient(message.ID, bob.ID))
	require.NoError(t, svc.DeleteForSender(message.ID, alice.ID), "record deletion succeeds even when file cleanup fails")

	_, err = store.GetMessage(message.ID)
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestConcurrentOppositeDeletesPurgeExactlyOnce(t *testing.T) {
	svc, store, blobs := newTestService(t)
	alice := createTestUser(t, store, "Alice", "alice@example.com")
	bob := createTestUser(t, store, "Bob", "bob@example.com")

	for i := 0; i < 50; i++ {
		storedName := uuid.New().String()
		message, err := svc.CreateMessage(alice.ID, bob.ID, "race", "body", "a.bin", storedName)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var failures atomic.Int32
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := svc.DeleteForSender(message.ID, alice.ID); err != nil {
				failures.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			if err := svc.DeleteForRecipient(message.ID, bob.ID); err != nil {
				failures.Add(1)
			}
		}()
		wg.Wait()

		assert.Zero(t, failures.Load(), "both one-sided deletes must succeed")
		assert.Equal(t, 1, blobs.count(storedName), "attachment must be cleaned up exactly once")
		_, err = store.GetMessage(message.ID)
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	}
}

// notifierSpy 记录通知调用
type notifierSpy struct {
	mu    sync.Mutex
	calls []string
}

func (n *notifierSpy) NotifyNewMessage(recipientID string, message *domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, recipientID)
}

func TestCreateMessageNotifiesRecipient(t *testing.T) {
	svc, store, _ := newTestService(t)
	alice := createTestUser(t, store, "Alice", "alice@example.com")
	bob := createTestUser(t, store, "Bob", "bob@example.com")

	spy := &notifierSpy{}
	svc.SetNotifier(spy)

	_, err := svc.CreateMessage(alice.ID, bob.ID, "Hi", "body", "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{bob.ID}, spy.calls)
}
