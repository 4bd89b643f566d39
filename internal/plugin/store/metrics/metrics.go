// Package metrics decorates a ChatStore with per-operation latency metrics.
package metrics

import (
	"context"
	"time"

	"github.com/chirino/cryptochat-server/internal/model"
	"github.com/chirino/cryptochat-server/internal/registry/store"
	"github.com/chirino/cryptochat-server/internal/security"
)

// Wrap returns a ChatStore that records StoreLatency for every operation.
func Wrap(inner store.ChatStore) store.ChatStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.ChatStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency != nil {
		security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *metricsStore) InsertUser(ctx context.Context, id int64, publicKey string) error {
	defer observe("insert_user", time.Now())
	return m.inner.InsertUser(ctx, id, publicKey)
}

func (m *metricsStore) SelectUser(ctx context.Context, id int64) (*model.User, error) {
	defer observe("select_user", time.Now())
	return m.inner.SelectUser(ctx, id)
}

func (m *metricsStore) InsertChat(ctx context.Context, users []int64, keys []string) (int64, error) {
	defer observe("insert_chat", time.Now())
	return m.inner.InsertChat(ctx, users, keys)
}

func (m *metricsStore) SelectChat(ctx context.Context, chatID int64) (*model.Chat, error) {
	defer observe("select_chat", time.Now())
	return m.inner.SelectChat(ctx, chatID)
}

func (m *metricsStore) SelectMyChats(ctx context.Context, userID int64) ([]model.Chat, error) {
	defer observe("select_my_chats", time.Now())
	return m.inner.SelectMyChats(ctx, userID)
}

func (m *metricsStore) InsertMessage(ctx context.Context, chatID, senderID int64, message string) (float64, error) {
	defer observe("insert_message", time.Now())
	return m.inner.InsertMessage(ctx, chatID, senderID, message)
}

func (m *metricsStore) SelectMyMessages(ctx context.Context, chatID int64) ([]model.Message, error) {
	defer observe("select_my_messages", time.Now())
	return m.inner.SelectMyMessages(ctx, chatID)
}

func (m *metricsStore) SelectMessageUpdates(ctx context.Context, chatID int64, cursor float64) ([]model.Message, error) {
	defer observe("select_message_updates", time.Now())
	return m.inner.SelectMessageUpdates(ctx, chatID, cursor)
}

func (m *metricsStore) InsertContact(ctx context.Context, ownerID, userID int64, alias string) error {
	defer observe("insert_contact", time.Now())
	return m.inner.InsertContact(ctx, ownerID, userID, alias)
}

func (m *metricsStore) SelectMyContacts(ctx context.Context, ownerID int64) ([]model.Contact, error) {
	defer observe("select_my_contacts", time.Now())
	return m.inner.SelectMyContacts(ctx, ownerID)
}

func (m *metricsStore) DeleteMyContact(ctx context.Context, ownerID, userID int64) (int64, error) {
	defer observe("delete_my_contact", time.Now())
	return m.inner.DeleteMyContact(ctx, ownerID, userID)
}

func (m *metricsStore) AlterMyContact(ctx context.Context, ownerID, userID int64, newAlias string) (int64, error) {
	defer observe("alter_my_contact", time.Now())
	return m.inner.AlterMyContact(ctx, ownerID, userID, newAlias)
}
