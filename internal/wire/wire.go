package wire

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/DoyleJ11/tug-of-war-backend/internal/engine"
	"github.com/DoyleJ11/tug-of-war-backend/internal/lobby"
	"github.com/DoyleJ11/tug-of-war-backend/pkg/types"
)

func RoomInfo(r engine.Room, version int) types.RoomInfo {
	info := types.RoomInfo{
		RoomID:         r.ID,
		Team1:          r.Team1,
		Team2:          r.Team2,
		Team1Token:     r.Team1Token,
		Team2Token:     r.Team2Token,
		RopePosition:   r.RopePosition,
		Team1Score:     r.Team1Score,
		Team2Score:     r.Team2Score,
		Team1Connected: r.Team1Connected,
		Team2Connected: r.Team2Connected,
		AdminConnected: r.AdminConnected,
		GameStarted:    r.GameStarted,
		Phase:          string(r.Phase()),
		Version:        version,
		CreatedAt:      r.CreatedAt,
	}
	if r.Winner != "" {
		w := r.Winner
		info.Winner = &w
	}
	return info
}

// Encode turns a lobby snapshot into its wire envelope. baseURL prefixes the
// join links carried by room_created.
func Encode(s lobby.Snapshot, baseURL string) (types.Envelope, error) {
	info := RoomInfo(s.Room, s.Version)

	var (
		event   string
		payload any
	)
	switch s.Kind {
	case lobby.KindRoomCreated:
		event = types.EventRoomCreated
		payload = types.RoomCreated{
			RoomID:     s.Room.ID,
			RoomInfo:   info,
			Team1Token: s.Room.Team1Token,
			Team2Token: s.Room.Team2Token,
			Team1Link:  JoinLink(baseURL, s.Room.ID, s.Room.Team1Token),
			Team2Link:  JoinLink(baseURL, s.Room.ID, s.Room.Team2Token),
			IsAdmin:    true,
		}
	case lobby.KindJoinedRoom:
		event = types.EventJoinedRoom
		payload = types.JoinedRoom{RoomID: s.Room.ID, RoomInfo: info, IsAdmin: s.Recipient == engine.RoleAdmin}
	case lobby.KindRoomUpdate:
		event, payload = types.EventRoomUpdate, info
	case lobby.KindGameStarted:
		event, payload = types.EventGameStarted, info
	case lobby.KindRopeUpdated:
		event, payload = types.EventRopeUpdated, info
	case lobby.KindGameReset:
		event, payload = types.EventGameReset, info
	case lobby.KindAdminDisconnected:
		event, payload = types.EventAdminDisconnected, types.AdminDisconnected{RoomID: s.Room.ID}
	case lobby.KindTeamDisconnected:
		event = types.EventTeamDisconnected
		payload = types.TeamDisconnected{RoomID: s.Room.ID, Team: s.Room.TeamName(s.Subject)}
	default:
		return types.Envelope{}, fmt.Errorf("unknown snapshot kind %q", s.Kind)
	}

	return Envelope(event, payload)
}

func Envelope(event string, payload any) (types.Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return types.Envelope{}, fmt.Errorf("encode %s: %w", event, err)
	}
	return types.Envelope{Type: event, Data: data}, nil
}

func Error(message string) types.Envelope {
	env, _ := Envelope(types.EventError, types.ErrorPayload{Message: message})
	return env
}

// Decode unmarshals an envelope's data into dst.
func Decode(env types.Envelope, dst any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%s: missing data", env.Type)
	}
	return json.Unmarshal(env.Data, dst)
}

func JoinLink(baseURL, roomID, token string) string {
	return strings.TrimSuffix(baseURL, "/") + types.JoinPath(roomID, token)
}

// BaseURL returns configured when set, otherwise the scheme and host the
// request arrived on (respecting X-Forwarded-Proto).
func BaseURL(r *http.Request, configured string) string {
	if configured != "" {
		return strings.TrimSuffix(configured, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
