package service

import (
	"context"
	"strings"
	"time"

	"RoomChat/logger"
	"RoomChat/middleware/security"
	"RoomChat/module/chat/model"
	"RoomChat/module/store"
	"RoomChat/tools/errs"
	toolsec "RoomChat/tools/security"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New()

// RegisterReq is the sign-up body.
type RegisterReq struct {
	Username string `json:"username" validate:"required,min=3,max=150"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginReq struct {
	Username string `json:"username" validate:"required,max=150"`
	Password string `json:"password" validate:"required,max=72"`
}

// Session is the result of a successful register or login.
type Session struct {
	User     *model.User `json:"user"`
	Token    string      `json:"token"`
	ExpireAt time.Time   `json:"expire_at"`
}

type UserService struct {
	users store.Users
	jwt   toolsec.Options
}

func NewUserService(users store.Users, jwt toolsec.Options) *UserService {
	return &UserService{users: users, jwt: jwt}
}

func (s *UserService) JWT() toolsec.Options { return s.jwt }

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return errs.ErrArgs.WrapMsg(err.Error())
	}
	return nil
}

// usernames are listed comma separated when adding room members
func checkUsername(username string) error {
	if strings.ContainsAny(username, ", \t\r\n") {
		return errs.ErrArgs.WrapMsg("username must not contain commas or whitespace", "username", username)
	}
	return nil
}

func (s *UserService) Register(ctx context.Context, req *RegisterReq) (*Session, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if err := checkUsername(req.Username); err != nil {
		return nil, err
	}
	hash, err := toolsec.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := &model.User{Username: req.Username, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	logger.Info("user registered", zap.String("user", u.ID), zap.String("username", u.Username))
	return s.issue(u)
}

// Login answers ErrLoginFailed for both an unknown user and a wrong password.
func (s *UserService) Login(ctx context.Context, req *LoginReq) (*Session, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	u, err := s.users.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errs.Code(err) == errs.RecordNotFoundError {
			return nil, errs.ErrLoginFailed.WrapMsg("unknown username", "username", req.Username)
		}
		return nil, err
	}
	ok, err := toolsec.ComparePassword(req.Password, u.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrLoginFailed.WrapMsg("wrong password", "username", req.Username)
	}
	return s.issue(u)
}

func (s *UserService) issue(u *model.User) (*Session, error) {
	token, exp, err := toolsec.Generate(s.jwt, u.ID, u.Username)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, Token: token, ExpireAt: exp}, nil
}

// Lookup resolves a token subject for the auth middleware.
func (s *UserService) Lookup(ctx context.Context, userID string) (security.Identity, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return security.Identity{}, err
	}
	return security.Identity{ID: u.ID, Username: u.Username}, nil
}
