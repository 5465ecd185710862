package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tug-of-war-backend/internal/engine"
	"github.com/DoyleJ11/tug-of-war-backend/internal/hub"
	"github.com/DoyleJ11/tug-of-war-backend/internal/lobby"
	"github.com/DoyleJ11/tug-of-war-backend/internal/token"
)

const abandonTimeout = 2 * time.Second

// Conn is the transport side of one live connection.
type Conn struct {
	ID     string
	Outbox chan lobby.Snapshot
	// Evict tears the connection down; see lobby.Join.
	Evict func()
}

// Binding is what a connection currently is inside a room.
type Binding struct {
	RoomID string
	Role   engine.Role
	lobby  *lobby.Lobby
}

// Binder tracks every connection's room binding, admin and team alike, and
// is the only path through which connections mutate rooms.
type Binder struct {
	hub       *hub.Hub
	tokens    *token.Registry
	adminCode string
	log       *zap.Logger

	mu       sync.Mutex
	bindings map[string]Binding
}

func NewBinder(h *hub.Hub, adminCode string, log *zap.Logger) *Binder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Binder{
		hub:       h,
		tokens:    h.Tokens(),
		adminCode: adminCode,
		log:       log,
		bindings:  make(map[string]Binding),
	}
}

// CreateRoom creates a room and binds conn to it as admin. The creator
// receives a room_created snapshot with both tokens.
func (b *Binder) CreateRoom(ctx context.Context, conn Conn, team1, team2, adminCode string) (engine.Room, error) {
	if !b.adminCodeOK(adminCode) {
		return engine.Room{}, ErrAdminCodeRequired
	}

	lb, room, err := b.hub.CreateRoom(ctx, team1, team2)
	if err != nil {
		return engine.Room{}, err
	}
	if err := b.bind(ctx, conn, lb, engine.RoleAdmin, lobby.KindRoomCreated); err != nil {
		return engine.Room{}, err
	}
	return room, nil
}

func (b *Binder) JoinAsAdmin(ctx context.Context, conn Conn, roomID, adminCode string) error {
	lb, err := b.hub.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if !b.adminCodeOK(adminCode) {
		return ErrAdminCodeRequired
	}
	return b.bind(ctx, conn, lb, engine.RoleAdmin, lobby.KindJoinedRoom)
}

// JoinAsTeam binds conn to the team the token was issued for. The team is
// never taken from the client.
func (b *Binder) JoinAsTeam(ctx context.Context, conn Conn, roomID, teamToken string) error {
	lb, err := b.hub.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if teamToken == "" {
		return ErrTokenMissing
	}
	grant, err := b.tokens.Resolve(teamToken)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if grant.RoomID != roomID {
		return ErrTokenRoomMismatch
	}
	return b.bind(ctx, conn, lb, grant.Role, lobby.KindJoinedRoom)
}

// Unbind releases conn's binding, if any. When it returns the room's
// connected flags no longer count conn.
func (b *Binder) Unbind(ctx context.Context, connID string) error {
	b.mu.Lock()
	bd, ok := b.bindings[connID]
	delete(b.bindings, connID)
	b.mu.Unlock()
	if !ok {
		return nil
	}

	b.log.Info("unbind", zap.String("conn_id", connID), zap.String("room_id", bd.RoomID), zap.String("role", string(bd.Role)))

	err := bd.lobby.LeaveClient(ctx, connID)
	if errors.Is(err, lobby.ErrLobbyClosed) {
		return nil
	}
	return err
}

func (b *Binder) Binding(connID string) (Binding, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bd, ok := b.bindings[connID]
	return bd, ok
}

func (b *Binder) bind(ctx context.Context, conn Conn, lb *lobby.Lobby, role engine.Role, greeting lobby.Kind) error {
	b.mu.Lock()
	prev, had := b.bindings[conn.ID]
	b.mu.Unlock()

	if had && prev.lobby != lb {
		if err := b.Unbind(ctx, conn.ID); err != nil {
			return err
		}
	}

	err := lb.JoinClient(ctx, lobby.Join{
		ClientID: conn.ID,
		Role:     role,
		Outbox:   conn.Outbox,
		Greeting: greeting,
		Evict:    conn.Evict,
	})
	if err != nil {
		if ctx.Err() != nil {
			b.abandon(conn.ID, lb)
		}
		return err
	}

	b.mu.Lock()
	b.bindings[conn.ID] = Binding{RoomID: lb.ID(), Role: role, lobby: lb}
	b.mu.Unlock()

	b.log.Info("bind", zap.String("conn_id", conn.ID), zap.String("room_id", lb.ID()), zap.String("role", string(role)))
	return nil
}

// abandon undoes a join whose caller stopped waiting. The lobby drains its
// inbox in order, so a join that was already queued is left right after.
func (b *Binder) abandon(connID string, lb *lobby.Lobby) {
	ctx, cancel := context.WithTimeout(context.Background(), abandonTimeout)
	defer cancel()
	if err := lb.LeaveClient(ctx, connID); err != nil && !errors.Is(err, lobby.ErrLobbyClosed) {
		b.log.Warn("abandon join", zap.String("conn_id", connID), zap.String("room_id", lb.ID()), zap.Error(err))
	}

	b.mu.Lock()
	if bd, ok := b.bindings[connID]; ok && bd.lobby == lb {
		delete(b.bindings, connID)
	}
	b.mu.Unlock()
}

func (b *Binder) adminCodeOK(code string) bool {
	if b.adminCode == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(code), []byte(b.adminCode)) == 1
}

// AdminCodeOK reports whether code grants admin identity. With no code
// configured nothing does, so callers outside a bound admin session never
// see tokens.
func (b *Binder) AdminCodeOK(code string) bool {
	if b.adminCode == "" {
		return false
	}
	return b.adminCodeOK(code)
}
