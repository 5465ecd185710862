package types

import (
	"net/url"
	"time"
)

// RoomInfo is the full room snapshot sent on every change. Token fields are
// empty (and omitted) for recipients that are not the room admin.
type RoomInfo struct {
	RoomID         string    `json:"roomId"`
	Team1          string    `json:"team1"`
	Team2          string    `json:"team2"`
	Team1Token     string    `json:"team1Token,omitempty"`
	Team2Token     string    `json:"team2Token,omitempty"`
	RopePosition   int       `json:"ropePosition"`
	Team1Score     int       `json:"team1Score"`
	Team2Score     int       `json:"team2Score"`
	Team1Connected bool      `json:"team1Connected"`
	Team2Connected bool      `json:"team2Connected"`
	AdminConnected bool      `json:"adminConnected"`
	GameStarted    bool      `json:"gameStarted"`
	Winner         *string   `json:"winner"` // null until a side reaches the end of the rope
	Phase          string    `json:"phase"`  // "lobby" | "in_progress" | "finished"
	Version        int       `json:"version"`
	CreatedAt      time.Time `json:"createdAt"`
}

// JoinPath is the shareable path a team opens to join: /join/{roomId}?token=...
func JoinPath(roomID, token string) string {
	return "/join/" + url.PathEscape(roomID) + "?token=" + url.QueryEscape(token)
}
