// Package tinydb implements the chat store on a single human-readable JSON
// document. Each operation is one whole-document transaction: invariant
// checks, id assignment, and the row mutation all happen under the
// document's write lock, so concurrent inserts cannot race id assignment.
package tinydb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/cryptochat-server/internal/config"
	"github.com/chirino/cryptochat-server/internal/docstore"
	"github.com/chirino/cryptochat-server/internal/model"
	registrymigrate "github.com/chirino/cryptochat-server/internal/registry/migrate"
	registrystore "github.com/chirino/cryptochat-server/internal/registry/store"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "tinydb",
		Loader: func(ctx context.Context) (registrystore.ChatStore, error) {
			cfg := config.FromContext(ctx)
			db, err := docstore.Open[document](cfg.DBPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open chat database: %w", err)
			}
			log.Info("Using chat database", "path", cfg.DBPath)
			return &TinyStore{db: db}, nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &tinydbMigrator{}})
}

type tinydbMigrator struct{}

func (m *tinydbMigrator) Name() string { return "tinydb" }

// Migrate validates the backing document up front so a malformed file fails
// the process at startup rather than on the first request.
func (m *tinydbMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg.DatastoreType != "tinydb" {
		return nil
	}
	_, err := docstore.Open[document](cfg.DBPath)
	return err
}

// TinyStore is the document-backed ChatStore.
type TinyStore struct {
	db *docstore.Store[document]
}

var _ registrystore.ChatStore = (*TinyStore)(nil)

// storageErr converts document I/O faults into the store error taxonomy and
// passes domain errors through untouched.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ioErr *docstore.IOError
	if errors.As(err, &ioErr) {
		return &registrystore.StorageError{Op: op, Err: err}
	}
	return err
}

func (s *TinyStore) InsertUser(ctx context.Context, id int64, publicKey string) error {
	err := s.db.Update(func(doc *document) error {
		if doc.userExists(id) {
			return &registrystore.ConflictError{
				Message: fmt.Sprintf("user with id %d already exists", id),
			}
		}
		for _, u := range doc.Users {
			if u.PublicKey == publicKey {
				return &registrystore.ConflictError{
					Message: fmt.Sprintf("public key already registered to user %d", u.ID),
				}
			}
		}
		doc.putUser(model.User{ID: id, PublicKey: publicKey})
		return nil
	})
	return storageErr("insert user", err)
}

func (s *TinyStore) SelectUser(ctx context.Context, id int64) (*model.User, error) {
	var user *model.User
	err := s.db.View(func(doc *document) error {
		u, err := doc.getUser(id)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	return user, storageErr("select user", err)
}

func (s *TinyStore) InsertChat(ctx context.Context, users []int64, keys []string) (int64, error) {
	var chatID int64
	err := s.db.Update(func(doc *document) error {
		if dup := doc.findChatByMembers(users); dup != nil {
			return &registrystore.ConflictError{
				Message: fmt.Sprintf("chat with users %v already exists as chat %d", users, dup.ID),
			}
		}
		if missing := doc.missingUsers(users); len(missing) > 0 {
			return &registrystore.UnknownReferenceError{Resource: "user", IDs: missing}
		}
		if len(users) != len(keys) {
			return &registrystore.ValidationError{
				Field:   "sym_key_enc_by_owners_pub_keys",
				Message: fmt.Sprintf("expected %d keys to match the users, got %d", len(users), len(keys)),
			}
		}
		chatID = doc.assignChatID()
		doc.putChat(model.Chat{ID: chatID, Users: users, Keys: keys})
		return nil
	})
	if err != nil {
		return 0, storageErr("insert chat", err)
	}
	return chatID, nil
}

func (s *TinyStore) SelectChat(ctx context.Context, chatID int64) (*model.Chat, error) {
	var chat *model.Chat
	err := s.db.View(func(doc *document) error {
		c, err := doc.getChat(chatID)
		if err != nil {
			return err
		}
		chat = c
		return nil
	})
	return chat, storageErr("select chat", err)
}

func (s *TinyStore) SelectMyChats(ctx context.Context, userID int64) ([]model.Chat, error) {
	var chats []model.Chat
	err := s.db.View(func(doc *document) error {
		if !doc.userExists(userID) {
			return &registrystore.UnknownReferenceError{Resource: "user", IDs: []int64{userID}}
		}
		for _, c := range doc.Chats {
			if userSet(c.Users)[userID] {
				chats = append(chats, c)
			}
		}
		sort.Slice(chats, func(i, j int) bool { return chats[i].ID < chats[j].ID })
		return nil
	})
	return chats, storageErr("select my chats", err)
}

func (s *TinyStore) InsertMessage(ctx context.Context, chatID, senderID int64, message string) (float64, error) {
	var ts float64
	err := s.db.Update(func(doc *document) error {
		if !doc.userExists(senderID) {
			return &registrystore.UnknownReferenceError{Resource: "user", IDs: []int64{senderID}}
		}
		if !doc.chatExists(chatID) {
			return &registrystore.UnknownReferenceError{Resource: "chat", IDs: []int64{chatID}}
		}
		ts = now()
		doc.Messages = append(doc.Messages, model.Message{
			ChatID:    chatID,
			SenderID:  senderID,
			Seq:       doc.assignSeq(chatID),
			Timestamp: ts,
			Message:   message,
		})
		return nil
	})
	if err != nil {
		return 0, storageErr("insert message", err)
	}
	return ts, nil
}

func (s *TinyStore) SelectMyMessages(ctx context.Context, chatID int64) ([]model.Message, error) {
	msgs, err := s.chatMessages(chatID)
	if err != nil {
		return nil, err
	}
	registrystore.SortMessages(msgs)
	return msgs, nil
}

func (s *TinyStore) SelectMessageUpdates(ctx context.Context, chatID int64, cursor float64) ([]model.Message, error) {
	msgs, err := s.chatMessages(chatID)
	if err != nil {
		return nil, err
	}
	return registrystore.MessagesSince(msgs, cursor), nil
}

func (s *TinyStore) chatMessages(chatID int64) ([]model.Message, error) {
	var msgs []model.Message
	err := s.db.View(func(doc *document) error {
		if !doc.chatExists(chatID) {
			return &registrystore.UnknownReferenceError{Resource: "chat", IDs: []int64{chatID}}
		}
		for _, m := range doc.Messages {
			if m.ChatID == chatID {
				msgs = append(msgs, m)
			}
		}
		return nil
	})
	return msgs, storageErr("select messages", err)
}

func (s *TinyStore) InsertContact(ctx context.Context, ownerID, userID int64, alias string) error {
	err := s.db.Update(func(doc *document) error {
		if _, ok := doc.Contacts[contactKey(ownerID, userID)]; ok {
			return &registrystore.ConflictError{
				Message: fmt.Sprintf("user %d is already a contact of user %d", userID, ownerID),
			}
		}
		if missing := doc.missingUsers([]int64{ownerID, userID}); len(missing) > 0 {
			return &registrystore.UnknownReferenceError{Resource: "user", IDs: missing}
		}
		doc.putContact(model.Contact{OwnerID: ownerID, UserID: userID, Alias: alias})
		return nil
	})
	return storageErr("insert contact", err)
}

func (s *TinyStore) SelectMyContacts(ctx context.Context, ownerID int64) ([]model.Contact, error) {
	var contacts []model.Contact
	err := s.db.View(func(doc *document) error {
		if !doc.userExists(ownerID) {
			return &registrystore.UnknownReferenceError{Resource: "user", IDs: []int64{ownerID}}
		}
		for _, c := range doc.Contacts {
			if c.OwnerID == ownerID {
				contacts = append(contacts, c)
			}
		}
		sort.Slice(contacts, func(i, j int) bool { return contacts[i].UserID < contacts[j].UserID })
		return nil
	})
	return contacts, storageErr("select my contacts", err)
}

func (s *TinyStore) DeleteMyContact(ctx context.Context, ownerID, userID int64) (int64, error) {
	var removed int64
	err := s.db.Update(func(doc *document) error {
		key := contactKey(ownerID, userID)
		if _, ok := doc.Contacts[key]; ok {
			delete(doc.Contacts, key)
			removed = 1
		}
		return nil
	})
	return removed, storageErr("delete contact", err)
}

func (s *TinyStore) AlterMyContact(ctx context.Context, ownerID, userID int64, newAlias string) (int64, error) {
	var changed int64
	err := s.db.Update(func(doc *document) error {
		key := contactKey(ownerID, userID)
		if c, ok := doc.Contacts[key]; ok {
			c.Alias = newAlias
			doc.Contacts[key] = c
			changed = 1
		}
		return nil
	})
	return changed, storageErr("alter contact", err)
}

// now returns the current time as fractional seconds since the epoch with
// microsecond precision, the unit the message cursor is expressed in.
func now() float64 {
	return float64(time.Now().UnixMicro()) / 1e6
}
