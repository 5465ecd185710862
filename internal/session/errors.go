package session

import (
	"context"
	"errors"

	"github.com/DoyleJ11/tug-of-war-backend/internal/engine"
	"github.com/DoyleJ11/tug-of-war-backend/internal/hub"
	"github.com/DoyleJ11/tug-of-war-backend/internal/lobby"
)

var (
	ErrRoomNotFound      = hub.ErrRoomNotFound
	ErrTokenMissing      = errors.New("team token missing")
	ErrInvalidToken      = errors.New("invalid team token")
	ErrTokenRoomMismatch = errors.New("token issued for another room")
	ErrAdminCodeRequired = errors.New("admin access code required")
	ErrNotAdmin          = errors.New("connection is not the room admin")
	ErrNotInRoom         = errors.New("connection has not joined the room")
	ErrWrongSide         = errors.New("team may only pull its own side")
)

const internalMessage = "Internal server error"

var messages = []struct {
	err error
	msg string
}{
	{ErrRoomNotFound, "Room does not exist"},
	{ErrTokenMissing, "Team token is required to join a room"},
	{ErrInvalidToken, "Invalid team token"},
	{ErrTokenRoomMismatch, "Token does not match this room"},
	{ErrAdminCodeRequired, "Admin access code is required"},
	{ErrNotAdmin, "Only the room admin can do that"},
	{ErrNotInRoom, "Join the room first"},
	{ErrWrongSide, "Teams can only pull for themselves"},
	{hub.ErrInvalidTeams, "Both team names are required and must differ"},
	{engine.ErrNotStarted, "Game has not started"},
	{engine.ErrAlreadyFinished, "Game is already finished"},
	{engine.ErrInvalidSide, "teamAnswering must be \"A\" or \"B\""},
	{lobby.ErrLobbyClosed, "Room is closed"},
	{hub.ErrHubClosed, "Server is shutting down"},
}

// Message returns the client-facing text for err. The bool is false for
// errors that have no public wording and should be logged instead.
func Message(err error) (string, bool) {
	for _, m := range messages {
		if errors.Is(err, m.err) {
			return m.msg, true
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out", true
	}
	return internalMessage, false
}
