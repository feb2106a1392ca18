package models

// WSMessage is the envelope pushed to connected clients over the
// websocket hub.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type ChatListEvent struct {
	ModelID   string `json:"model_id"`
	ModelName string `json:"model_name,omitempty"`
}

// CleanupTask is queued when a compensating delete or an index purge
// fails, so the reaper can retry it out of band.
type CleanupTask struct {
	UserID    string `json:"user_id"`
	ModelID   string `json:"model_id"`
	PurgeOnly bool   `json:"purge_only"`
	Attempts  int    `json:"attempts"`
}
