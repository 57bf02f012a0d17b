package proto

import (
	"encoding/json"
	"time"

	"github.com/vovakirdan/wirechat-dm/internal/schema"
)

const (
	ProtocolVersion = 1

	FrameTypeBatch = "batch"
	FrameTypeError = "error"
)

// Error codes carried in protocol errors.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeInternal     = "internal"
)

// Outbound is the envelope for frames sent on a watch stream.
type Outbound struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Inbound is the decoding side of Outbound.
type Inbound struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// BatchData is the payload of a batch frame.
type BatchData struct {
	Changes []schema.Change `json:"changes"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Msg
}

// Watch query parameters.
const (
	QuerySenderID   = string(schema.FieldSenderID)
	QueryReceiverID = string(schema.FieldReceiverID)
	QueryAfter      = "after"
	QueryToken      = "token"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Name            string `json:"name" binding:"required"`
	LastName        string `json:"lastName" binding:"required"`
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=Password"`
	Image           string `json:"image" binding:"required"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token string      `json:"token"`
	User  schema.User `json:"user"`
}

// PushTokenRequest sets the caller's push token.
type PushTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// SendMessageRequest appends a message from the caller.
type SendMessageRequest struct {
	ReceiverID string    `json:"receiverId" binding:"required"`
	Body       string    `json:"message" binding:"required"`
	SentAt     time.Time `json:"timeStamp"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}
