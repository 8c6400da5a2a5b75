package pgstore

const Schema = `
CREATE TABLE IF NOT EXISTS account (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	bio TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	avatar_placeholder TEXT NOT NULL DEFAULT '',
	birthdate TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT account_username_key UNIQUE (username)
);
CREATE TABLE IF NOT EXISTS credential (
	account_id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT credential_email_key UNIQUE (email)
);
CREATE TABLE IF NOT EXISTS follow (
	id TEXT PRIMARY KEY,
	follower_id TEXT NOT NULL,
	following_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT follow_follower_id_following_id_key UNIQUE (follower_id, following_id)
);
CREATE TABLE IF NOT EXISTS album (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS post (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	album_id TEXT NOT NULL DEFAULT '',
	caption TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS post_media (
	id TEXT PRIMARY KEY,
	post_id TEXT NOT NULL,
	path TEXT NOT NULL,
	placeholder TEXT NOT NULL DEFAULT '',
	position BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS post_like (
	id TEXT PRIMARY KEY,
	post_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT post_like_post_id_account_id_key UNIQUE (post_id, account_id)
);
CREATE TABLE IF NOT EXISTS comment (
	id TEXT PRIMARY KEY,
	post_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	text TEXT NOT NULL,
	reply_origin_comment_id TEXT NOT NULL DEFAULT '',
	in_reply_to_comment_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS comment_like (
	id TEXT PRIMARY KEY,
	comment_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT comment_like_comment_id_account_id_key UNIQUE (comment_id, account_id)
);
CREATE TABLE IF NOT EXISTS conversation (
	id TEXT PRIMARY KEY,
	origin_account_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS conversation_target (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	last_read TIMESTAMPTZ,
	deleted_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS conversation_message (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	text TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)
`
