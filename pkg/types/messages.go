package types

import "encoding/json"

// Client -> Server
const (
	EventCreateRoom = "create_room" // CreateRoomRequest
	EventJoinRoom   = "join_room"   // JoinRoomRequest
	EventStartGame  = "start_game"  // RoomRequest
	EventUpdateRope = "update_rope" // UpdateRopeRequest
	EventResetGame  = "reset_game"  // RoomRequest
)

// Server -> Client
const (
	EventRoomCreated       = "room_created"       // RoomCreated
	EventJoinedRoom        = "joined_room"        // JoinedRoom
	EventRoomUpdate        = "room_update"        // RoomInfo
	EventGameStarted       = "game_started"       // RoomInfo
	EventRopeUpdated       = "rope_updated"       // RoomInfo
	EventGameReset         = "game_reset"         // RoomInfo
	EventAdminDisconnected = "admin_disconnected" // AdminDisconnected
	EventTeamDisconnected  = "team_disconnected"  // TeamDisconnected
	EventError             = "error"              // ErrorPayload
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type CreateRoomRequest struct {
	Team1      string `json:"team1"`
	Team2      string `json:"team2"`
	AdminToken string `json:"adminToken,omitempty"`
}

// JoinRoomRequest: Team is informational only; a team's identity comes from
// TeamToken.
type JoinRoomRequest struct {
	RoomID     string `json:"roomId"`
	Team       string `json:"team,omitempty"`
	IsAdmin    bool   `json:"isAdmin,omitempty"`
	TeamToken  string `json:"teamToken,omitempty"`
	AdminToken string `json:"adminToken,omitempty"`
}

type RoomRequest struct {
	RoomID string `json:"roomId"`
}

type UpdateRopeRequest struct {
	RoomID        string `json:"roomId"`
	TeamAnswering string `json:"teamAnswering"` // "A" | "B"
}

type RoomCreated struct {
	RoomID     string   `json:"roomId"`
	RoomInfo   RoomInfo `json:"roomInfo"`
	Team1Token string   `json:"team1Token"`
	Team2Token string   `json:"team2Token"`
	Team1Link  string   `json:"team1Link,omitempty"`
	Team2Link  string   `json:"team2Link,omitempty"`
	IsAdmin    bool     `json:"isAdmin"`
}

type JoinedRoom struct {
	RoomID   string   `json:"roomId"`
	RoomInfo RoomInfo `json:"roomInfo"`
	IsAdmin  bool     `json:"isAdmin"`
}

type AdminDisconnected struct {
	RoomID string `json:"roomId"`
}

type TeamDisconnected struct {
	RoomID string `json:"roomId"`
	Team   string `json:"team"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// RoomLookup is the body of GET /api/room/{roomId}.
type RoomLookup struct {
	Exists bool      `json:"exists"`
	Room   *RoomInfo `json:"room,omitempty"`
}
