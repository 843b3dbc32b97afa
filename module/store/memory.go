package store

import (
	"context"
	"sync"
	"time"

	"RoomChat/module/chat/model"
	"RoomChat/tools/errs"
	"RoomChat/tools/ids"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Memory keeps everything in process. It backs single-node development runs
// and tests.
type Memory struct {
	mu sync.RWMutex

	users  map[string]*model.User
	byName map[string]string // username -> id

	rooms     map[string]*model.Room
	roomOrder []string

	msgs   map[string][]*model.Message // room -> messages, oldest first
	byID   map[int64]*model.Message
	lastAt map[string]time.Time // room -> newest created_at

	now   func() time.Time
	idGen func() int64
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		users:  make(map[string]*model.User),
		byName: make(map[string]string),
		rooms:  make(map[string]*model.Room),
		msgs:   make(map[string][]*model.Message),
		byID:   make(map[int64]*model.Message),
		lastAt: make(map[string]time.Time),
		now:    time.Now,
		idGen:  ids.Generate,
	}
}

func (m *Memory) Close() {}

func copyUser(u *model.User) *model.User {
	cp := *u
	return &cp
}

func copyRoom(r *model.Room) *model.Room {
	cp := *r
	cp.Members = append([]string(nil), r.Members...)
	return &cp
}

func copyMessage(msg *model.Message) *model.Message {
	cp := *msg
	cp.UnreadBy = append([]string(nil), msg.UnreadBy...)
	return &cp
}

// ---- users ----

func (m *Memory) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[u.Username]; ok {
		return errs.ErrUserExists.WrapMsg("username taken", "username", u.Username)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = m.now().UTC()
	}
	m.users[u.ID] = copyUser(u)
	m.byName[u.Username] = u.ID
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("user not found", "user", id)
	}
	return copyUser(u), nil
}

func (m *Memory) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[username]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("user not found", "username", username)
	}
	return copyUser(m.users[id]), nil
}

func (m *Memory) FindUsersByUsernames(_ context.Context, usernames []string) ([]*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.User, 0, len(usernames))
	for _, name := range lo.Uniq(usernames) {
		if id, ok := m.byName[name]; ok {
			out = append(out, copyUser(m.users[id]))
		}
	}
	return out, nil
}

func (m *Memory) Usernames(_ context.Context, userIDs []string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		if u, ok := m.users[id]; ok {
			out[id] = u.Username
		}
	}
	return out, nil
}

// ---- rooms ----

func (m *Memory) CreateRoom(_ context.Context, r *model.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[r.AdminID]; !ok {
		return errs.ErrRecordNotFound.WrapMsg("admin not found", "user", r.AdminID)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now().UTC()
	}
	r.Members = []string{r.AdminID}
	m.rooms[r.ID] = copyRoom(r)
	m.roomOrder = append(m.roomOrder, r.ID)
	return nil
}

func (m *Memory) GetRoom(_ context.Context, id string) (*model.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("room not found", "room", id)
	}
	return copyRoom(r), nil
}

func (m *Memory) AddMembers(_ context.Context, roomID string, userIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return errs.ErrRecordNotFound.WrapMsg("room not found", "room", roomID)
	}
	for _, id := range userIDs {
		if _, ok := m.users[id]; !ok {
			continue
		}
		if !lo.Contains(r.Members, id) {
			r.Members = append(r.Members, id)
		}
	}
	return nil
}

func (m *Memory) IsMember(_ context.Context, userID, roomID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return false, nil
	}
	return r.HasMember(userID), nil
}

func (m *Memory) MembersOf(_ context.Context, roomID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("room not found", "room", roomID)
	}
	return append([]string(nil), r.Members...), nil
}

func (m *Memory) RoomsOf(_ context.Context, userID string) ([]*model.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Room
	for _, id := range m.roomOrder {
		if r := m.rooms[id]; r.HasMember(userID) {
			out = append(out, copyRoom(r))
		}
	}
	return out, nil
}

// ---- messages ----

func (m *Memory) Append(_ context.Context, authorID, roomID, content string) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[authorID]; !ok {
		return nil, errs.ErrStaleReference.WrapMsg("author not found", "user", authorID)
	}
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, errs.ErrStaleReference.WrapMsg("room not found", "room", roomID)
	}
	created := m.now().UTC()
	if last := m.lastAt[roomID]; last.After(created) {
		created = last
	}
	msg := &model.Message{
		ID:        m.idGen(),
		RoomID:    roomID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: created,
		UnreadBy:  lo.Without(r.Members, authorID),
	}
	m.msgs[roomID] = append(m.msgs[roomID], msg)
	m.byID[msg.ID] = msg
	m.lastAt[roomID] = created
	return copyMessage(msg), nil
}

func (m *Memory) LastN(_ context.Context, roomID string, n, offset int) ([]*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.msgs[roomID]
	if n <= 0 || offset < 0 || offset >= len(all) {
		return []*model.Message{}, nil
	}
	end := len(all) - offset
	start := max(end-n, 0)
	return lo.Map(all[start:end], func(msg *model.Message, _ int) *model.Message {
		return copyMessage(msg)
	}), nil
}

func (m *Memory) MarkRead(_ context.Context, userID string, messageIDs ...int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range messageIDs {
		if msg, ok := m.byID[id]; ok {
			msg.UnreadBy = lo.Without(msg.UnreadBy, userID)
		}
	}
	return nil
}

func (m *Memory) LastMessage(_ context.Context, roomID string) (*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.msgs[roomID]
	if len(all) == 0 {
		return nil, nil
	}
	return copyMessage(all[len(all)-1]), nil
}

func (m *Memory) UnreadCounts(_ context.Context, userID string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int)
	for roomID, all := range m.msgs {
		for _, msg := range all {
			if lo.Contains(msg.UnreadBy, userID) {
				out[roomID]++
			}
		}
	}
	return out, nil
}
