package postgres

// changesChannel is the NOTIFY channel shared by all sessions; listeners
// filter on the session ID in the payload
const changesChannel = "qwz_session_changes"

const schema = `
CREATE TABLE IF NOT EXISTS qwz_sessions (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	version    BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
)`

const (
	insertSessionSQL = `
INSERT INTO qwz_sessions (id, doc, version, expires_at)
VALUES ($1, $2, $3, now() + $4::interval)
ON CONFLICT (id) DO UPDATE
	SET doc = EXCLUDED.doc, version = EXCLUDED.version, updated_at = now(), expires_at = EXCLUDED.expires_at
	WHERE qwz_sessions.expires_at <= now()`

	selectSessionSQL = `
SELECT doc FROM qwz_sessions WHERE id = $1 AND expires_at > now()`

	selectSessionForUpdateSQL = selectSessionSQL + ` FOR UPDATE`

	updateSessionSQL = `
UPDATE qwz_sessions
SET doc = $2, version = $3, updated_at = now(), expires_at = now() + $4::interval
WHERE id = $1`

	notifySQL = `SELECT pg_notify($1, $2)`

	sessionExistsSQL = `
SELECT EXISTS (SELECT 1 FROM qwz_sessions WHERE id = $1 AND expires_at > now())`

	deleteSessionSQL = `
WITH deleted AS (DELETE FROM qwz_sessions WHERE id = $1 RETURNING id)
SELECT pg_notify($2, $3) FROM deleted`

	purgeExpiredSQL = `
WITH purged AS (DELETE FROM qwz_sessions WHERE expires_at <= now() RETURNING id),
notified AS (SELECT pg_notify($1, json_build_object('session_id', id)::text) FROM purged)
SELECT count(*) FROM notified`
)
