// Package schema holds the record definitions shared by the remote store,
// its client and the conversation synchronizer.
package schema

import (
	"errors"
	"fmt"
	"time"
)

// Collection names a collection in the remote store.
type Collection string

const (
	CollectionUsers Collection = "Users"
	CollectionChat  Collection = "chat"
)

// Field names a record field as it appears on the wire.
type Field string

const (
	FieldID         Field = "id"
	FieldSeq        Field = "seq"
	FieldSenderID   Field = "senderId"
	FieldReceiverID Field = "receiverId"
	FieldBody       Field = "message"
	FieldSentAt     Field = "timeStamp"

	FieldName      Field = "name"
	FieldLastName  Field = "lastName"
	FieldEmail     Field = "email"
	FieldImage     Field = "image"
	FieldPushToken Field = "fcmToken"
)

// ErrInvalidFilter is returned when a filter does not name both parties.
var ErrInvalidFilter = errors.New("invalid filter")

// Message is a single immutable chat record.
//
// SentAt is assigned by the writer at send time. ID and Seq are assigned by
// the store on insert; Seq grows strictly with insertion order.
type Message struct {
	ID         string    `json:"id,omitempty"`
	Seq        int64     `json:"seq,omitempty"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Body       string    `json:"message"`
	SentAt     time.Time `json:"timeStamp"`
}

// User is a directory entry as seen by other users.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	LastName  string    `json:"lastName,omitempty"`
	Email     string    `json:"email"`
	Image     string    `json:"image,omitempty"`
	PushToken string    `json:"fcmToken,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// DisplayName joins first and last name.
func (u User) DisplayName() string {
	if u.LastName == "" {
		return u.Name
	}
	return u.Name + " " + u.LastName
}

// Filter selects the messages of one direction of a conversation.
type Filter struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// Validate reports whether both parties are set.
func (f Filter) Validate() error {
	if f.SenderID == "" || f.ReceiverID == "" {
		return fmt.Errorf("%w: sender and receiver are required", ErrInvalidFilter)
	}
	return nil
}

// Matches reports whether msg travels in the filter's direction.
func (f Filter) Matches(msg Message) bool {
	return msg.SenderID == f.SenderID && msg.ReceiverID == f.ReceiverID
}

// Reverse returns the filter for the opposite direction.
func (f Filter) Reverse() Filter {
	return Filter{SenderID: f.ReceiverID, ReceiverID: f.SenderID}
}

// Involves reports whether userID is one of the two parties.
func (f Filter) Involves(userID string) bool {
	return userID != "" && (f.SenderID == userID || f.ReceiverID == userID)
}

func (f Filter) String() string {
	return f.SenderID + "->" + f.ReceiverID
}

// FilterOf returns the filter that msg matches.
func FilterOf(msg Message) Filter {
	return Filter{SenderID: msg.SenderID, ReceiverID: msg.ReceiverID}
}

// PairFilters returns both directions of the conversation between a and b,
// a->b first.
func PairFilters(a, b string) [2]Filter {
	f := Filter{SenderID: a, ReceiverID: b}
	return [2]Filter{f, f.Reverse()}
}
