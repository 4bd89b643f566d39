package store

import (
	"context"
	"fmt"

	"github.com/chirino/cryptochat-server/internal/model"
)

// ChatStore is the typed domain-operations contract the route adapters
// consume. Implementations own the backing persistence exclusively and
// enforce referential integrity and uniqueness; callers never see partial
// state. Every operation either returns a result or exactly one of the error
// kinds in errors.go.
type ChatStore interface {
	// InsertUser registers a user under a caller-supplied id. Fails with
	// ConflictError if the id or the public key is already registered.
	InsertUser(ctx context.Context, id int64, publicKey string) error

	// SelectUser returns the user with the given id, NotFoundError when it
	// does not exist, and ConsistencyError when more than one row matches.
	SelectUser(ctx context.Context, id int64) (*model.User, error)

	// InsertChat creates a chat over the given member ids and their
	// positionally paired encrypted keys, returning the assigned chat id.
	// Checks run in order: duplicate member set (ConflictError), unknown
	// members (UnknownReferenceError naming the missing ids), users/keys
	// length mismatch (ValidationError). Nothing is inserted on failure.
	InsertChat(ctx context.Context, users []int64, keys []string) (int64, error)

	// SelectChat returns the chat with the given id or NotFoundError.
	SelectChat(ctx context.Context, chatID int64) (*model.Chat, error)

	// SelectMyChats returns every chat the user is a member of. Fails with
	// UnknownReferenceError when the user does not exist.
	SelectMyChats(ctx context.Context, userID int64) ([]model.Chat, error)

	// InsertMessage appends a message to a chat, stamping it with the current
	// server time, and returns the assigned timestamp. Fails with
	// UnknownReferenceError when the sender or the chat is unknown.
	InsertMessage(ctx context.Context, chatID, senderID int64, message string) (float64, error)

	// SelectMyMessages returns the chat's full message history in ascending
	// order. Fails with UnknownReferenceError when the chat does not exist.
	SelectMyMessages(ctx context.Context, chatID int64) ([]model.Message, error)

	// SelectMessageUpdates returns the messages strictly newer than the
	// cursor (a previously seen message timestamp), oldest first. A cursor
	// matching no stored message yields the full history.
	SelectMessageUpdates(ctx context.Context, chatID int64, cursor float64) ([]model.Message, error)

	// InsertContact adds an aliased contact. Fails with ConflictError when
	// the (owner, user) pair already exists and UnknownReferenceError when
	// either id is not a registered user.
	InsertContact(ctx context.Context, ownerID, userID int64, alias string) error

	// SelectMyContacts returns the owner's contacts. Fails with
	// UnknownReferenceError when the owner does not exist.
	SelectMyContacts(ctx context.Context, ownerID int64) ([]model.Contact, error)

	// DeleteMyContact removes the matching contact and reports how many rows
	// were removed. Removing a non-existent pair is not an error.
	DeleteMyContact(ctx context.Context, ownerID, userID int64) (int64, error)

	// AlterMyContact replaces the alias of the matching contact and reports
	// how many rows changed. A non-existent pair is a zero-change success.
	AlterMyContact(ctx context.Context, ownerID, userID int64, newAlias string) (int64, error)
}

// Loader creates a store from config carried on the context.
type Loader func(ctx context.Context) (ChatStore, error)

// Plugin represents a datastore plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a datastore plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered datastore plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named datastore plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown datastore %q; valid: %v", name, Names())
}
