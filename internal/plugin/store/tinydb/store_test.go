package tinydb_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chirino/cryptochat-server/internal/config"
	"github.com/chirino/cryptochat-server/internal/plugin/store/tinydb"
	registrymigrate "github.com/chirino/cryptochat-server/internal/registry/migrate"
	registrystore "github.com/chirino/cryptochat-server/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (registrystore.ChatStore, context.Context) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DatastoreType = "tinydb"
	cfg.DBPath = filepath.Join(t.TempDir(), "db.json")
	ctx := config.WithContext(context.Background(), &cfg)

	// Ensure the tinydb store plugin is registered
	_ = tinydb.ForceImport

	err := registrymigrate.RunAll(ctx)
	require.NoError(t, err)

	loader, err := registrystore.Select("tinydb")
	require.NoError(t, err)

	store, err := loader(ctx)
	require.NoError(t, err)

	return store, ctx
}

func TestInsertAndSelectUser(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.InsertUser(ctx, 123, "pubkey-123"))

	user, err := store.SelectUser(ctx, 123)
	require.NoError(t, err)
	assert.Equal(t, int64(123), user.ID)
	assert.Equal(t, "pubkey-123", user.PublicKey)
}

func TestInsertUserDuplicateID(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.InsertUser(ctx, 1, "key-a"))

	err := store.InsertUser(ctx, 1, "key-b")
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestInsertUserDuplicatePublicKey(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.InsertUser(ctx, 1, "shared-key"))

	err := store.InsertUser(ctx, 2, "shared-key")
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestSelectUserNotFound(t *testing.T) {
	store, ctx := setupTestStore(t)

	_, err := store.SelectUser(ctx, 404)
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "user", notFound.Resource)
}

func TestInsertChatAssignsMonotonicIDs(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.InsertUser(ctx, 1, "k1"))
	require.NoError(t, store.InsertUser(ctx, 2, "k2"))
	require.NoError(t, store.InsertUser(ctx, 3, "k3"))

	id1, err := store.InsertChat(ctx, []int64{1, 2}, []string{"e1", "e2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id1)

	id2, err := store.InsertChat(ctx, []int64{2, 3}, []string{"e2", "e3"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), id2)
}

func TestInsertChatUnknownUsersNamed(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.InsertUser(ctx, 1, "k1"))

	_, err := store.InsertChat(ctx, []int64{1, 8, 9}, []string{"a", "b", "c"})
	var unknown *registrystore.UnknownReferenceError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []int64{8, 9}, unknown.IDs)

	// nothing inserted: the user still has no chats
	chats, err := store.SelectMyChats(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestInsertChatLengthMismatch(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.InsertUser(ctx, 1, "k1"))
	require.NoError(t, store.InsertUser(ctx, 2, "k2"))

	_, err := store.InsertChat(ctx, []int64{1, 2}, []string{"only-one"})
	var validation *registrystore.ValidationError
	require.ErrorAs(t, err, &validation)

	chats, err := store.SelectMyChats(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestInsertChatDuplicateUserSet(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.InsertUser(ctx, 1, "k1"))
	require.NoError(t, store.InsertUser(ctx, 2, "k2"))

	_, err := store.InsertChat(ctx, []int64{1, 2}, []string{"a", "b"})
	require.NoError(t, err)

	// same member set, reordered
	_, err = store.InsertChat(ctx, []int64{2, 1}, []string{"b", "a"})
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestSelectChatAndMyChats(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.InsertUser(ctx, 1, "k1"))
	require.NoError(t, store.InsertUser(ctx, 2, "k2"))
	require.NoError(t, store.InsertUser(ctx, 3, "k3"))

	id, err := store.InsertChat(ctx, []int64{1, 2}, []string{"a", "b"})
	require.NoError(t, err)

	chat, err := store.SelectChat(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, chat.Users)
	assert.Equal(t, []string{"a", "b"}, chat.Keys)

	_, err = store.SelectChat(ctx, 999)
	var notFound *registrystore.NotFoundError
	require.ErrorAs(t, err, &notFound)

	// membership, not ownership: both members see the chat, user 3 does not
	for _, uid := range []int64{1, 2} {
		chats, err := store.SelectMyChats(ctx, uid)
		require.NoError(t, err)
		require.Len(t, chats, 1)
		assert.Equal(t, id, chats[0].ID)
	}
	chats, err := store.SelectMyChats(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestInsertMessageValidatesReferences(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.InsertUser(ctx, 1, "k1"))
	require.NoError(t, store.InsertUser(ctx, 2, "k2"))
	chatID, err := store.InsertChat(ctx, []int64{1, 2}, []string{"a", "b"})
	require.NoError(t, err)

	var unknown *registrystore.UnknownReferenceError

	_, err = store.InsertMessage(ctx, chatID, 42, "hi")
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "user", unknown.Resource)

	_, err = store.InsertMessage(ctx, 42, 1, "hi")
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "chat", unknown.Resource)
}

func TestMessagesOrderedAndTimestamped(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.InsertUser(ctx, 1, "k1"))
	require.NoError(t, store.InsertUser(ctx, 2, "k2"))
	chatID, err := store.InsertChat(ctx, []int64{1, 2}, []string{"a", "b"})
	require.NoError(t, err)

	before := float64(time.Now().UnixMicro()) / 1e6
	ts, err := store.InsertMessage(ctx, chatID, 1, "first")
	require.NoError(t, err)
	_, err = store.InsertMessage(ctx, chatID, 2, "second")
	require.NoError(t, err)
	after := float64(time.Now().UnixMicro()) / 1e6

	assert.GreaterOrEqual(t, ts, before)
	assert.LessOrEqual(t, ts, after)

	msgs, err := store.SelectMyMessages(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Message)
	assert.Equal(t, "second", msgs[1].Message)
	assert.LessOrEqual(t, msgs[0].Timestamp, msgs[1].Timestamp)
	assert.Less(t, msgs[0].Seq, msgs[1].Seq)
}

func TestSelectMessageUpdatesCursor(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.InsertUser(ctx, 1, "k1"))
	require.NoError(t, store.InsertUser(ctx, 2, "k2"))
	chatID, err := store.InsertChat(ctx, []int64{1, 2}, []string{"a", "b"})
	require.NoError(t, err)

	_, err = store.InsertMessage(ctx, chatID, 1, "m1")
	require.NoError(t, err)
	cursor, err := store.InsertMessage(ctx, chatID, 2, "m2")
	require.NoError(t, err)
	_, err = store.InsertMessage(ctx, chatID, 1, "m3")
	require.NoError(t, err)

	updates, err := store.SelectMessageUpdates(ctx, chatID, cursor)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "m3", updates[0].Message)

	// a cursor that matches nothing yields the full history
	all, err := store.SelectMessageUpdates(ctx, chatID, -1)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestContactsLifecycle(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.InsertUser(ctx, 1, "k1"))
	require.NoError(t, store.InsertUser(ctx, 2, "k2"))

	require.NoError(t, store.InsertContact(ctx, 1, 2, "alice"))

	err := store.InsertContact(ctx, 1, 2, "alice-again")
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)

	changed, err := store.AlterMyContact(ctx, 1, 2, "alicia")
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	contacts, err := store.SelectMyContacts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "alicia", contacts[0].Alias)

	// altering a non-existent pair changes nothing and does not fail
	changed, err = store.AlterMyContact(ctx, 1, 99, "nobody")
	require.NoError(t, err)
	assert.Zero(t, changed)

	removed, err := store.DeleteMyContact(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	removed, err = store.DeleteMyContact(ctx, 1, 2)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestInsertContactUnknownUsers(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.InsertUser(ctx, 1, "k1"))

	err := store.InsertContact(ctx, 1, 7, "ghost")
	var unknown *registrystore.UnknownReferenceError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []int64{7}, unknown.IDs)

	_, err = store.SelectMyContacts(ctx, 7)
	require.ErrorAs(t, err, &unknown)
}

func TestEndToEndChatFlow(t *testing.T) {
	store, ctx := setupTestStore(t)

	require.NoError(t, store.InsertUser(ctx, 100, "pk-100"))
	require.NoError(t, store.InsertUser(ctx, 200, "pk-200"))

	chatID, err := store.InsertChat(ctx, []int64{100, 200}, []string{"k1", "k2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), chatID)

	_, err = store.InsertMessage(ctx, chatID, 100, "hi")
	require.NoError(t, err)

	msgs, err := store.SelectMyMessages(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Message)
	assert.Equal(t, int64(100), msgs[0].SenderID)
}

func TestDataSurvivesReload(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "tinydb"
	cfg.DBPath = filepath.Join(t.TempDir(), "db.json")
	ctx := config.WithContext(context.Background(), &cfg)

	loader, err := registrystore.Select("tinydb")
	require.NoError(t, err)

	store, err := loader(ctx)
	require.NoError(t, err)
	require.NoError(t, store.InsertUser(ctx, 5, "pk-5"))

	reopened, err := loader(ctx)
	require.NoError(t, err)
	user, err := reopened.SelectUser(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "pk-5", user.PublicKey)
}
