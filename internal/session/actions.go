package session

import (
	"context"

	"github.com/DoyleJ11/tug-of-war-backend/internal/engine"
	"github.com/DoyleJ11/tug-of-war-backend/internal/lobby"
)

// StartGame moves the room from lobby to in progress. Admin only.
func (b *Binder) StartGame(ctx context.Context, connID, roomID string) (engine.Room, error) {
	lb, err := b.authorize(ctx, connID, roomID, true)
	if err != nil {
		return engine.Room{}, err
	}
	return lb.Apply(ctx, engine.Command{Type: engine.CmdStartGame})
}

// CorrectAnswer pulls the rope toward side. Teams may only pull their own
// side; the admin may pull either.
func (b *Binder) CorrectAnswer(ctx context.Context, connID, roomID string, side engine.Side) (engine.Room, error) {
	lb, err := b.authorize(ctx, connID, roomID, false)
	if err != nil {
		return engine.Room{}, err
	}
	if side != engine.SideA && side != engine.SideB {
		return engine.Room{}, engine.ErrInvalidSide
	}

	bd, _ := b.Binding(connID)
	if own, isTeam := engine.SideOf(bd.Role); isTeam && own != side {
		return engine.Room{}, ErrWrongSide
	}
	return lb.Apply(ctx, engine.Command{Type: engine.CmdCorrectAnswer, Side: side})
}

// ResetGame returns the room to the lobby. Admin only.
func (b *Binder) ResetGame(ctx context.Context, connID, roomID string) (engine.Room, error) {
	lb, err := b.authorize(ctx, connID, roomID, true)
	if err != nil {
		return engine.Room{}, err
	}
	return lb.Apply(ctx, engine.Command{Type: engine.CmdResetGame})
}

// authorize resolves roomID first so unknown rooms always surface as
// ErrRoomNotFound, then checks conn's binding.
func (b *Binder) authorize(ctx context.Context, connID, roomID string, adminOnly bool) (*lobby.Lobby, error) {
	lb, err := b.hub.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}

	bd, ok := b.Binding(connID)
	if !ok || bd.RoomID != roomID {
		if adminOnly {
			return nil, ErrNotAdmin
		}
		return nil, ErrNotInRoom
	}
	if adminOnly && bd.Role != engine.RoleAdmin {
		return nil, ErrNotAdmin
	}
	return lb, nil
}
