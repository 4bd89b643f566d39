package model

// RecordType tags persisted rows with the entity they belong to.
type RecordType string

const (
	RecordTypeUser    RecordType = "USER"
	RecordTypeChat    RecordType = "CHAT"
	RecordTypeMessage RecordType = "MESSAGE"
	RecordTypeContact RecordType = "CONTACT"
)

// User is a registered client identified by a caller-supplied id and its
// public key. Users are immutable once created.
type User struct {
	ID        int64  `json:"id"         gorm:"primaryKey;autoIncrement:false"`
	PublicKey string `json:"public_key" gorm:"not null;uniqueIndex"`
}

func (User) TableName() string { return "users" }

// Chat is a group of users sharing one symmetric key, encrypted once per
// member with that member's public key. Users and keys are positionally
// paired. Chats are immutable after creation.
type Chat struct {
	ID    int64    `json:"id"                             gorm:"primaryKey;autoIncrement:false"`
	Users []int64  `json:"users"                          gorm:"serializer:json;not null"`
	Keys  []string `json:"sym_key_enc_by_owners_pub_keys" gorm:"serializer:json;not null"`
}

func (Chat) TableName() string { return "chats" }

// Message is one append-only log entry in a chat. The payload is opaque to
// the server (encrypted client-side). Timestamp is server-assigned at insert
// time and doubles as the external cursor value; Seq is a per-chat monotonic
// sequence that keeps ordering stable when timestamps tie.
type Message struct {
	RowID     uint64  `json:"-"         gorm:"column:row_id;primaryKey;autoIncrement"`
	ChatID    int64   `json:"chat_id"   gorm:"not null;index"`
	SenderID  int64   `json:"sender_id" gorm:"not null"`
	Seq       int64   `json:"seq"       gorm:"not null"`
	Timestamp float64 `json:"timestamp" gorm:"not null"`
	Message   string  `json:"message"   gorm:"not null"`
}

func (Message) TableName() string { return "messages" }

// Contact is an aliased address-book entry, unique per (owner, user) pair.
// The alias is stored encrypted and is opaque to the server.
type Contact struct {
	OwnerID int64  `json:"owner_id" gorm:"primaryKey;autoIncrement:false"`
	UserID  int64  `json:"user_id"  gorm:"primaryKey;autoIncrement:false"`
	Alias   string `json:"alias"    gorm:"not null"`
}

func (Contact) TableName() string { return "contacts" }
