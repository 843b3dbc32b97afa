package store

import (
	"context"

	"RoomChat/module/chat/model"
)

// Users is the account repository.
type Users interface {
	// CreateUser assigns an id when u.ID is empty. A taken username yields
	// errs.ErrUserExists.
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	// FindUsersByUsernames skips unknown names.
	FindUsersByUsernames(ctx context.Context, usernames []string) ([]*model.User, error)
	// Usernames maps ids to usernames; unknown ids are absent.
	Usernames(ctx context.Context, ids []string) (map[string]string, error)
}

// Rooms answers membership questions and manages rooms.
type Rooms interface {
	// CreateRoom stores r with its admin as the sole member.
	CreateRoom(ctx context.Context, r *model.Room) error
	GetRoom(ctx context.Context, id string) (*model.Room, error)
	// AddMembers ignores users that are already members.
	AddMembers(ctx context.Context, roomID string, userIDs []string) error
	// IsMember is false, without error, for a missing room.
	IsMember(ctx context.Context, userID, roomID string) (bool, error)
	// MembersOf returns members in join order, errs.ErrRecordNotFound for a
	// missing room.
	MembersOf(ctx context.Context, roomID string) ([]string, error)
	RoomsOf(ctx context.Context, userID string) ([]*model.Room, error)
}

// Messages is the append-only message log with its unread side table.
type Messages interface {
	// Append persists a message and its unread set (members minus author)
	// together. A missing author or room yields errs.ErrStaleReference.
	Append(ctx context.Context, authorID, roomID, content string) (*model.Message, error)
	// LastN returns up to n messages skipping the offset newest ones,
	// oldest first.
	LastN(ctx context.Context, roomID string, n, offset int) ([]*model.Message, error)
	// MarkRead removes userID from the unread set of each message.
	MarkRead(ctx context.Context, userID string, messageIDs ...int64) error
	// LastMessage returns nil when the room has no messages.
	LastMessage(ctx context.Context, roomID string) (*model.Message, error)
	// UnreadCounts counts unread messages per room for userID.
	UnreadCounts(ctx context.Context, userID string) (map[string]int, error)
}

type Store interface {
	Users
	Rooms
	Messages
	Close()
}
