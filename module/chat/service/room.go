package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"RoomChat/logger"
	"RoomChat/module/chat/model"
	"RoomChat/module/store"
	wschat "RoomChat/service/chat"
	"RoomChat/tools/errs"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var validate = validator.New()

type CreateRoomReq struct {
	RoomName string `json:"room_name" validate:"max=255"`
}

// AddMembersReq carries comma separated usernames, e.g. "bob, carol".
type AddMembersReq struct {
	Usernames string `json:"usernames" validate:"max=4096"`
}

type MemberView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type RoomView struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	AdminID     string       `json:"admin_id"`
	Members     []MemberView `json:"members"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ChatView is one entry of the chats list.
type ChatView struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	LastMessage *wschat.MessageView `json:"last_message"`
	Unread      int                 `json:"unread"`
}

type RoomService struct {
	store store.Store
}

func NewRoomService(s store.Store) *RoomService {
	return &RoomService{store: s}
}

func (s *RoomService) Create(ctx context.Context, adminID string, req *CreateRoomReq) (*RoomView, error) {
	if err := validate.Struct(req); err != nil {
		return nil, errs.ErrArgs.WrapMsg(err.Error())
	}
	r := &model.Room{Name: strings.TrimSpace(req.RoomName), AdminID: adminID}
	if err := s.store.CreateRoom(ctx, r); err != nil {
		return nil, err
	}
	logger.Info("room created", zap.String("room", r.ID), zap.String("admin", adminID))
	return s.view(ctx, r)
}

// AddMembers adds the named users to a room the actor belongs to. Unknown
// names are skipped.
func (s *RoomService) AddMembers(ctx context.Context, actorID, roomID string, req *AddMembersReq) (*RoomView, error) {
	if err := validate.Struct(req); err != nil {
		return nil, errs.ErrArgs.WrapMsg(err.Error())
	}
	if err := s.guard(ctx, actorID, roomID); err != nil {
		return nil, err
	}
	names := SplitUsernames(req.Usernames)
	if len(names) > 0 {
		users, err := s.store.FindUsersByUsernames(ctx, names)
		if err != nil {
			return nil, err
		}
		ids := lo.Map(users, func(u *model.User, _ int) string { return u.ID })
		if len(ids) > 0 {
			if err := s.store.AddMembers(ctx, roomID, ids); err != nil {
				return nil, err
			}
			logger.Info("members added", zap.String("room", roomID), zap.String("by", actorID), zap.Strings("users", ids))
		}
	}
	return s.Get(ctx, actorID, roomID)
}

func (s *RoomService) Get(ctx context.Context, actorID, roomID string) (*RoomView, error) {
	if err := s.guard(ctx, actorID, roomID); err != nil {
		return nil, err
	}
	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, r)
}

// ChatsList returns the user's rooms, most recently active first. The
// current room is reported with no unread messages since the user is
// looking at it.
func (s *RoomService) ChatsList(ctx context.Context, userID, currentRoomID string) ([]ChatView, error) {
	rooms, err := s.store.RoomsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	unread, err := s.store.UnreadCounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	previews := make([]model.ChatPreview, 0, len(rooms))
	userIDs := make([]string, 0)
	names := make(map[string][]string, len(rooms))
	for _, r := range rooms {
		last, err := s.store.LastMessage(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		p := model.ChatPreview{RoomID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt, LastMessage: last}
		if r.ID != currentRoomID {
			p.Unread = unread[r.ID]
		}
		previews = append(previews, p)
		userIDs = append(userIDs, r.Members...)
		if last != nil {
			userIDs = append(userIDs, last.AuthorID)
		}
		names[r.ID] = r.Members
	}

	usernames, err := s.store.Usernames(ctx, lo.Uniq(userIDs))
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(previews, func(a, b model.ChatPreview) int {
		if c := b.Recency().Compare(a.Recency()); c != 0 {
			return c
		}
		return strings.Compare(a.RoomID, b.RoomID)
	})

	out := make([]ChatView, 0, len(previews))
	for _, p := range previews {
		memberNames := lo.FilterMap(names[p.RoomID], func(id string, _ int) (string, bool) {
			n, ok := usernames[id]
			return n, ok
		})
		v := ChatView{ID: p.RoomID, Name: model.DisplayName(p.Name, memberNames), Unread: p.Unread}
		if p.LastMessage != nil {
			mv := wschat.NewMessageView(p.LastMessage, usernames[p.LastMessage.AuthorID])
			v.LastMessage = &mv
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *RoomService) guard(ctx context.Context, userID, roomID string) error {
	ok, err := s.store.IsMember(ctx, userID, roomID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrNoPermission.WrapMsg("not a member of the room", "user", userID, "room", roomID)
	}
	return nil
}

func (s *RoomService) view(ctx context.Context, r *model.Room) (*RoomView, error) {
	usernames, err := s.store.Usernames(ctx, r.Members)
	if err != nil {
		return nil, err
	}
	members := make([]MemberView, 0, len(r.Members))
	memberNames := make([]string, 0, len(r.Members))
	for _, id := range r.Members {
		members = append(members, MemberView{ID: id, Username: usernames[id]})
		if n, ok := usernames[id]; ok {
			memberNames = append(memberNames, n)
		}
	}
	return &RoomView{
		ID:          r.ID,
		Name:        r.Name,
		DisplayName: model.DisplayName(r.Name, memberNames),
		AdminID:     r.AdminID,
		Members:     members,
		CreatedAt:   r.CreatedAt,
	}, nil
}

// SplitUsernames parses "a, b,,c" into distinct non-empty names.
func SplitUsernames(s string) []string {
	parts := lo.Map(strings.Split(s, ","), func(p string, _ int) string { return strings.TrimSpace(p) })
	return lo.Uniq(lo.Compact(parts))
}
