package store

// schema is applied on startup when postgres.migrate is set. Ids are text so
// the same values flow through the memory and postgres stores.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            text PRIMARY KEY,
	username      varchar(150) NOT NULL UNIQUE,
	password_hash text NOT NULL,
	created_at    timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rooms (
	id              text PRIMARY KEY,
	name            text NOT NULL DEFAULT '',
	admin_id        text NOT NULL REFERENCES users(id),
	created_at      timestamptz NOT NULL DEFAULT now(),
	last_message_at timestamptz
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id   text NOT NULL REFERENCES rooms(id),
	user_id   text NOT NULL REFERENCES users(id),
	joined_at timestamptz NOT NULL DEFAULT now(),
	position  bigserial,
	PRIMARY KEY (room_id, user_id)
);
CREATE INDEX IF NOT EXISTS room_members_user_idx ON room_members (user_id);

CREATE TABLE IF NOT EXISTS messages (
	id         bigint PRIMARY KEY,
	room_id    text NOT NULL REFERENCES rooms(id),
	author_id  text NOT NULL REFERENCES users(id),
	content    text NOT NULL,
	created_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_room_created_idx ON messages (room_id, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS message_unread (
	message_id bigint NOT NULL REFERENCES messages(id),
	user_id    text NOT NULL REFERENCES users(id),
	PRIMARY KEY (message_id, user_id)
);
CREATE INDEX IF NOT EXISTS message_unread_user_idx ON message_unread (user_id);
`
