// Package sqlite implements the chat store on SQLite via gorm, for
// deployments that outgrow the single JSON document. Semantics match the
// tinydb backend: same invariants, same error kinds, same cursor behavior.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/cryptochat-server/internal/config"
	"github.com/chirino/cryptochat-server/internal/model"
	registrymigrate "github.com/chirino/cryptochat-server/internal/registry/migrate"
	registrystore "github.com/chirino/cryptochat-server/internal/registry/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "sqlite",
		Loader: func(ctx context.Context) (registrystore.ChatStore, error) {
			cfg := config.FromContext(ctx)
			db, err := openDB(cfg.DBURL)
			if err != nil {
				return nil, err
			}
			log.Info("Using chat database", "sqlite", cfg.DBURL)
			return &SQLiteStore{db: db}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &sqliteMigrator{}})
}

func openDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return db, nil
}

type sqliteMigrator struct{}

func (m *sqliteMigrator) Name() string { return "sqlite" }

func (m *sqliteMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg.DatastoreType != "sqlite" {
		return nil
	}
	db, err := openDB(cfg.DBURL)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).AutoMigrate(
		&model.User{},
		&model.Chat{},
		&model.Message{},
		&model.Contact{},
	)
}

// SQLiteStore is the gorm-backed ChatStore. A single mutex serializes all
// write operations so the check-then-insert invariants and the id/sequence
// assignment never race, mirroring the document backend's write lock.
type SQLiteStore struct {
	db *gorm.DB
	mu sync.Mutex
}

var _ registrystore.ChatStore = (*SQLiteStore)(nil)

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &registrystore.StorageError{Op: op, Err: err}
}

func (s *SQLiteStore) InsertUser(ctx context.Context, id int64, publicKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return storageErr("insert user", err)
		}
		if count > 0 {
			return &registrystore.ConflictError{
				Message: fmt.Sprintf("user with id %d already exists", id),
			}
		}
		if err := tx.Model(&model.User{}).Where("public_key = ?", publicKey).Count(&count).Error; err != nil {
			return storageErr("insert user", err)
		}
		if count > 0 {
			return &registrystore.ConflictError{
				Message: "public key already registered",
			}
		}
		if err := tx.Create(&model.User{ID: id, PublicKey: publicKey}).Error; err != nil {
			return storageErr("insert user", err)
		}
		return nil
	})
}

func (s *SQLiteStore) SelectUser(ctx context.Context, id int64) (*model.User, error) {
	var users []model.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).Find(&users).Error; err != nil {
		return nil, storageErr("select user", err)
	}
	switch len(users) {
	case 0:
		return nil, &registrystore.NotFoundError{Resource: "user", ID: id}
	case 1:
		return &users[0], nil
	default:
		return nil, &registrystore.ConsistencyError{
			Message: fmt.Sprintf("%d rows for user id %d", len(users), id),
		}
	}
}

func (s *SQLiteStore) InsertChat(ctx context.Context, users []int64, keys []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var chatID int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Member sets live in a serialized JSON column, so the duplicate-set
		// check compares in Go.
		var chats []model.Chat
		if err := tx.Find(&chats).Error; err != nil {
			return storageErr("insert chat", err)
		}
		want := toSet(users)
		for _, c := range chats {
			if setsEqual(toSet(c.Users), want) {
				return &registrystore.ConflictError{
					Message: fmt.Sprintf("chat with users %v already exists as chat %d", users, c.ID),
				}
			}
		}

		if missing, err := s.missingUsers(tx, users); err != nil {
			return storageErr("insert chat", err)
		} else if len(missing) > 0 {
			return &registrystore.UnknownReferenceError{Resource: "user", IDs: missing}
		}

		if len(users) != len(keys) {
			return &registrystore.ValidationError{
				Field:   "sym_key_enc_by_owners_pub_keys",
				Message: fmt.Sprintf("expected %d keys to match the users, got %d", len(users), len(keys)),
			}
		}

		var maxID int64
		if err := tx.Model(&model.Chat{}).Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error; err != nil {
			return storageErr("insert chat", err)
		}
		chatID = maxID + 1
		if err := tx.Create(&model.Chat{ID: chatID, Users: users, Keys: keys}).Error; err != nil {
			return storageErr("insert chat", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return chatID, nil
}

func (s *SQLiteStore) missingUsers(tx *gorm.DB, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []int64
	if err := tx.Model(&model.User{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	foundSet := toSet(found)
	seen := map[int64]bool{}
	var missing []int64
	for _, id := range ids {
		if !seen[id] && !foundSet[id] {
			missing = append(missing, id)
		}
		seen[id] = true
	}
	return missing, nil
}

func (s *SQLiteStore) SelectChat(ctx context.Context, chatID int64) (*model.Chat, error) {
	var chat model.Chat
	err := s.db.WithContext(ctx).Where("id = ?", chatID).First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "chat", ID: chatID}
	}
	if err != nil {
		return nil, storageErr("select chat", err)
	}
	return &chat, nil
}

func (s *SQLiteStore) SelectMyChats(ctx context.Context, userID int64) ([]model.Chat, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	// Membership lives in the serialized JSON column; filter in Go.
	var chats []model.Chat
	if err := s.db.WithContext(ctx).Order("id").Find(&chats).Error; err != nil {
		return nil, storageErr("select my chats", err)
	}
	var mine []model.Chat
	for _, c := range chats {
		if toSet(c.Users)[userID] {
			mine = append(mine, c)
		}
	}
	return mine, nil
}

func (s *SQLiteStore) InsertMessage(ctx context.Context, chatID, senderID int64, message string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ts float64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.User{}).Where("id = ?", senderID).Count(&count).Error; err != nil {
			return storageErr("insert message", err)
		}
		if count == 0 {
			return &registrystore.UnknownReferenceError{Resource: "user", IDs: []int64{senderID}}
		}
		if err := tx.Model(&model.Chat{}).Where("id = ?", chatID).Count(&count).Error; err != nil {
			return storageErr("insert message", err)
		}
		if count == 0 {
			return &registrystore.UnknownReferenceError{Resource: "chat", IDs: []int64{chatID}}
		}

		var maxSeq int64
		if err := tx.Model(&model.Message{}).Where("chat_id = ?", chatID).
			Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
			return storageErr("insert message", err)
		}
		ts = float64(time.Now().UnixMicro()) / 1e6
		msg := model.Message{
			ChatID:    chatID,
			SenderID:  senderID,
			Seq:       maxSeq + 1,
			Timestamp: ts,
			Message:   message,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return storageErr("insert message", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return ts, nil
}

func (s *SQLiteStore) SelectMyMessages(ctx context.Context, chatID int64) ([]model.Message, error) {
	msgs, err := s.chatMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	registrystore.SortMessages(msgs)
	return msgs, nil
}

func (s *SQLiteStore) SelectMessageUpdates(ctx context.Context, chatID int64, cursor float64) ([]model.Message, error) {
	msgs, err := s.chatMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return registrystore.MessagesSince(msgs, cursor), nil
}

func (s *SQLiteStore) chatMessages(ctx context.Context, chatID int64) ([]model.Message, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Chat{}).Where("id = ?", chatID).Count(&count).Error; err != nil {
		return nil, storageErr("select messages", err)
	}
	if count == 0 {
		return nil, &registrystore.UnknownReferenceError{Resource: "chat", IDs: []int64{chatID}}
	}
	var msgs []model.Message
	if err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Find(&msgs).Error; err != nil {
		return nil, storageErr("select messages", err)
	}
	return msgs, nil
}

func (s *SQLiteStore) InsertContact(ctx context.Context, ownerID, userID int64, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Contact{}).
			Where("owner_id = ? AND user_id = ?", ownerID, userID).
			Count(&count).Error; err != nil {
			return storageErr("insert contact", err)
		}
		if count > 0 {
			return &registrystore.ConflictError{
				Message: fmt.Sprintf("user %d is already a contact of user %d", userID, ownerID),
			}
		}
		if missing, err := s.missingUsers(tx, []int64{ownerID, userID}); err != nil {
			return storageErr("insert contact", err)
		} else if len(missing) > 0 {
			return &registrystore.UnknownReferenceError{Resource: "user", IDs: missing}
		}
		if err := tx.Create(&model.Contact{OwnerID: ownerID, UserID: userID, Alias: alias}).Error; err != nil {
			return storageErr("insert contact", err)
		}
		return nil
	})
}

func (s *SQLiteStore) SelectMyContacts(ctx context.Context, ownerID int64) ([]model.Contact, error) {
	if err := s.requireUser(ctx, ownerID); err != nil {
		return nil, err
	}
	var contacts []model.Contact
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("user_id").
		Find(&contacts).Error; err != nil {
		return nil, storageErr("select my contacts", err)
	}
	return contacts, nil
}

func (s *SQLiteStore) DeleteMyContact(ctx context.Context, ownerID, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).
		Where("owner_id = ? AND user_id = ?", ownerID, userID).
		Delete(&model.Contact{})
	if result.Error != nil {
		return 0, storageErr("delete contact", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *SQLiteStore) AlterMyContact(ctx context.Context, ownerID, userID int64, newAlias string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.db.WithContext(ctx).Model(&model.Contact{}).
		Where("owner_id = ? AND user_id = ?", ownerID, userID).
		Update("alias", newAlias)
	if result.Error != nil {
		return 0, storageErr("alter contact", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *SQLiteStore) requireUser(ctx context.Context, id int64) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return storageErr("select user", err)
	}
	if count == 0 {
		return &registrystore.UnknownReferenceError{Resource: "user", IDs: []int64{id}}
	}
	return nil
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func setsEqual(a, b map[int64]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}
