package redis

import (
	"fmt"

	"github.com/mcoot/quizwordz/internal/model"
)

// Key prefix for all session data
const keyPrefix = "qwz"

// sessionKey returns the Redis key holding a Session document
func sessionKey(id model.SessionID) string {
	return fmt.Sprintf("%s:session:%s", keyPrefix, id)
}

// changesChannel returns the pub/sub channel carrying a session's committed snapshots
func changesChannel(id model.SessionID) string {
	return fmt.Sprintf("%s:session:%s:changes", keyPrefix, id)
}
