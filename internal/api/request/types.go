package request

// CreateSessionRequest is the request body for creating a session
type CreateSessionRequest struct {
	HostID     string `json:"host_id,omitempty"`
	SecretWord string `json:"secret_word"`
}

// JoinRequest is the request body for joining a session
type JoinRequest struct {
	PlayerID    string `json:"player_id,omitempty"`
	DisplayName string `json:"display_name"`
}

// HostRequest is the request body for host-only actions (start, end)
type HostRequest struct {
	HostID string `json:"host_id"`
}

// GuessRequest is the request body for submitting a guess
type GuessRequest struct {
	PlayerID string `json:"player_id"`
	Guess    string `json:"guess"`
}
