package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"RoomChat/logger"
	"RoomChat/module/chat/model"
	"RoomChat/tools/errs"
	"RoomChat/tools/ids"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const uniqueViolation = "23505"

type PostgresConfig struct {
	DSN      string
	MaxConns int32
	Migrate  bool
}

// Postgres implements Store on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres connects, pings and optionally applies the schema.
func NewPostgres(ctx context.Context, c PostgresConfig) (*Postgres, error) {
	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("invalid postgres dsn", "err", err)
	}
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, errs.WrapMsg(err, "postgres connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.WrapMsg(err, "postgres ping")
	}
	p := &Postgres{pool: pool}
	if c.Migrate {
		if err := p.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	logger.Info("postgres connected", zap.String("host", pc.ConnConfig.Host), zap.Int32("max_conns", pc.MaxConns))
	return p, nil
}

func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schema)
	return errs.WrapMsg(err, "postgres migrate")
}

func (p *Postgres) Close() { p.pool.Close() }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ---- users ----

func (p *Postgres) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		u.ID, u.Username, u.PasswordHash,
	).Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrUserExists.WrapMsg("username taken", "username", u.Username)
	}
	return errs.WrapMsg(err, "insert user", "username", u.Username)
}

func (p *Postgres) scanUser(row pgx.Row, key string) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrRecordNotFound.WrapMsg("user not found", "user", key)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "select user", "user", key)
	}
	return &u, nil
}

func (p *Postgres) GetUser(ctx context.Context, id string) (*model.User, error) {
	return p.scanUser(p.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE id = $1`, id), id)
}

func (p *Postgres) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return p.scanUser(p.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = $1`, username), username)
}

func (p *Postgres) FindUsersByUsernames(ctx context.Context, usernames []string) ([]*model.User, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, username, password_hash, created_at
		FROM users WHERE username = ANY($1)`, lo.Uniq(usernames))
	if err != nil {
		return nil, errs.WrapMsg(err, "select users by name")
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.User, error) {
		var u model.User
		err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
		return &u, err
	})
	return users, errs.WrapMsg(err, "scan users")
}

func (p *Postgres) Usernames(ctx context.Context, userIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := p.pool.Query(ctx, `SELECT id, username FROM users WHERE id = ANY($1)`, userIDs)
	if err != nil {
		return nil, errs.WrapMsg(err, "select usernames")
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, errs.WrapMsg(err, "scan username")
		}
		out[id] = name
	}
	return out, errs.Wrap(rows.Err())
}

// ---- rooms ----

func (p *Postgres) CreateRoom(ctx context.Context, r *model.Room) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO rooms (id, name, admin_id) VALUES ($1, $2, $3)
			RETURNING created_at`, r.ID, r.Name, r.AdminID).Scan(&r.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return errs.ErrRecordNotFound.WrapMsg("admin not found", "user", r.AdminID)
			}
			return errs.WrapMsg(err, "insert room")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2)`, r.ID, r.AdminID); err != nil {
			return errs.WrapMsg(err, "insert admin member")
		}
		r.Members = []string{r.AdminID}
		return nil
	})
}

func (p *Postgres) GetRoom(ctx context.Context, id string) (*model.Room, error) {
	var r model.Room
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, admin_id, created_at FROM rooms WHERE id = $1`, id,
	).Scan(&r.ID, &r.Name, &r.AdminID, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrRecordNotFound.WrapMsg("room not found", "room", id)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "select room", "room", id)
	}
	if r.Members, err = p.members(ctx, id); err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *Postgres) members(ctx context.Context, roomID string) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT user_id FROM room_members WHERE room_id = $1 ORDER BY position`, roomID)
	if err != nil {
		return nil, errs.WrapMsg(err, "select members", "room", roomID)
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return members, errs.WrapMsg(err, "scan members", "room", roomID)
}

func (p *Postgres) AddMembers(ctx context.Context, roomID string, userIDs []string) error {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO room_members (room_id, user_id)
		SELECT r.id, u.id FROM rooms r, users u
		WHERE r.id = $1 AND u.id = ANY($2)
		ON CONFLICT (room_id, user_id) DO NOTHING`, roomID, userIDs)
	if err != nil {
		return errs.WrapMsg(err, "insert members", "room", roomID)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)`, roomID).Scan(&exists); err != nil {
			return errs.WrapMsg(err, "select room", "room", roomID)
		}
		if !exists {
			return errs.ErrRecordNotFound.WrapMsg("room not found", "room", roomID)
		}
	}
	return nil
}

func (p *Postgres) IsMember(ctx context.Context, userID, roomID string) (bool, error) {
	var ok bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM room_members WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID).Scan(&ok)
	return ok, errs.WrapMsg(err, "select membership", "room", roomID, "user", userID)
}

func (p *Postgres) MembersOf(ctx context.Context, roomID string) ([]string, error) {
	members, err := p.members(ctx, roomID)
	if err != nil {
		return nil, err
	}
	// every room has its admin as a member
	if len(members) == 0 {
		return nil, errs.ErrRecordNotFound.WrapMsg("room not found", "room", roomID)
	}
	return members, nil
}

func (p *Postgres) RoomsOf(ctx context.Context, userID string) ([]*model.Room, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT r.id, r.name, r.admin_id, r.created_at,
		       ARRAY(SELECT m.user_id FROM room_members m WHERE m.room_id = r.id ORDER BY m.position)
		FROM rooms r
		JOIN room_members me ON me.room_id = r.id AND me.user_id = $1
		ORDER BY r.created_at`, userID)
	if err != nil {
		return nil, errs.WrapMsg(err, "select rooms", "user", userID)
	}
	rooms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Room, error) {
		var r model.Room
		err := row.Scan(&r.ID, &r.Name, &r.AdminID, &r.CreatedAt, &r.Members)
		return &r, err
	})
	return rooms, errs.WrapMsg(err, "scan rooms", "user", userID)
}

// ---- messages ----

// Append locks the room row so created_at stays non-decreasing per room and
// the unread rows are written in the same transaction as the message. The id
// and timestamp are both taken under the lock, so appends to one room are
// ordered the same way by (created_at, id) as by commit.
func (p *Postgres) Append(ctx context.Context, authorID, roomID, content string) (*model.Message, error) {
	msg := &model.Message{
		RoomID:   roomID,
		AuthorID: authorID,
		Content:  content,
	}
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var authorExists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, authorID).Scan(&authorExists); err != nil {
			return errs.WrapMsg(err, "select author", "user", authorID)
		}
		if !authorExists {
			return errs.ErrStaleReference.WrapMsg("author not found", "user", authorID)
		}

		var floor time.Time
		err := tx.QueryRow(ctx, `
			SELECT GREATEST(clock_timestamp(), COALESCE(last_message_at, created_at))
			FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&floor)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrStaleReference.WrapMsg("room not found", "room", roomID)
		}
		if err != nil {
			return errs.WrapMsg(err, "lock room", "room", roomID)
		}
		msg.ID = ids.Generate()
		msg.CreatedAt = floor.UTC()

		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (id, room_id, author_id, content, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			msg.ID, roomID, authorID, content, msg.CreatedAt); err != nil {
			return errs.WrapMsg(err, "insert message", "room", roomID)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE rooms SET last_message_at = $2 WHERE id = $1`, roomID, msg.CreatedAt); err != nil {
			return errs.WrapMsg(err, "touch room", "room", roomID)
		}
		rows, err := tx.Query(ctx, `
			INSERT INTO message_unread (message_id, user_id)
			SELECT $1, user_id FROM room_members WHERE room_id = $2 AND user_id <> $3
			RETURNING user_id`, msg.ID, roomID, authorID)
		if err != nil {
			return errs.WrapMsg(err, "insert unread", "room", roomID)
		}
		msg.UnreadBy, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return errs.WrapMsg(err, "scan unread", "room", roomID)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

const messageColumns = `m.id, m.room_id, m.author_id, m.content, m.created_at,
	ARRAY(SELECT u.user_id FROM message_unread u WHERE u.message_id = m.id)`

func scanMessage(row pgx.CollectableRow) (*model.Message, error) {
	var msg model.Message
	err := row.Scan(&msg.ID, &msg.RoomID, &msg.AuthorID, &msg.Content, &msg.CreatedAt, &msg.UnreadBy)
	return &msg, err
}

func (p *Postgres) LastN(ctx context.Context, roomID string, n, offset int) ([]*model.Message, error) {
	if n <= 0 || offset < 0 {
		return []*model.Message{}, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.room_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2 OFFSET $3`, roomID, n, offset)
	if err != nil {
		return nil, errs.WrapMsg(err, "select messages", "room", roomID)
	}
	msgs, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, errs.WrapMsg(err, "scan messages", "room", roomID)
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (p *Postgres) MarkRead(ctx context.Context, userID string, messageIDs ...int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx,
		`DELETE FROM message_unread WHERE user_id = $1 AND message_id = ANY($2)`, userID, messageIDs)
	return errs.WrapMsg(err, "mark read", "user", userID)
}

func (p *Postgres) LastMessage(ctx context.Context, roomID string) (*model.Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.room_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT 1`, roomID)
	if err != nil {
		return nil, errs.WrapMsg(err, "select last message", "room", roomID)
	}
	msg, err := pgx.CollectOneRow(rows, scanMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return msg, errs.WrapMsg(err, "scan last message", "room", roomID)
}

func (p *Postgres) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT m.room_id, count(*)
		FROM message_unread u JOIN messages m ON m.id = u.message_id
		WHERE u.user_id = $1
		GROUP BY m.room_id`, userID)
	if err != nil {
		return nil, errs.WrapMsg(err, "count unread", "user", userID)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var roomID string
		var n int
		if err := rows.Scan(&roomID, &n); err != nil {
			return nil, errs.WrapMsg(err, "scan unread count")
		}
		out[roomID] = n
	}
	return out, errs.Wrap(rows.Err())
}
