package model

import "time"

// Message is one chat message. UnreadBy holds the members that have not seen
// it yet; it never contains the author.
type Message struct {
	ID        int64     `json:"id" db:"id"`
	RoomID    string    `json:"room_id" db:"room_id"`
	AuthorID  string    `json:"author_id" db:"author_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UnreadBy  []string  `json:"-" db:"-"`
}

// ChatPreview is one row of a user's chats list.
type ChatPreview struct {
	RoomID      string
	Name        string
	CreatedAt   time.Time
	LastMessage *Message
	Unread      int
}

// Recency orders previews by last message, falling back to room creation.
func (p ChatPreview) Recency() time.Time {
	if p.LastMessage != nil {
		return p.LastMessage.CreatedAt
	}
	return p.CreatedAt
}
