package model

import "time"

// User is the identity handed to the chat core by the api service.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Message is immutable once the store has assigned its ID and Timestamp.
// RecipientID is nil for messages on the global channel.
type Message struct {
	ID          int64     `json:"id"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	SenderID    int64     `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	RecipientID *int64    `json:"recipient_id,omitempty"`
}

// IsDirect reports whether the message belongs to a pairwise conversation.
func (m Message) IsDirect() bool {
	return m.RecipientID != nil
}
