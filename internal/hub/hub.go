package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tug-of-war-backend/internal/engine"
	"github.com/DoyleJ11/tug-of-war-backend/internal/lobby"
	"github.com/DoyleJ11/tug-of-war-backend/internal/token"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrInvalidTeams = errors.New("invalid team names")
	ErrHubClosed    = errors.New("hub closed")
)

// maxCodeAttempts bounds collision retries; the code space is 36^6.
const maxCodeAttempts = 32

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	Team1 string
	Team2 string
	Reply chan Created
}

type Created struct {
	Lobby *lobby.Lobby
	Room  engine.Room
	Err   error
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type RemoveLobby struct {
	Code  string
	Reply chan bool
}

// SweepIdle removes rooms with no clients whose last activity is before
// Cutoff. Reply receives the removed codes.
type SweepIdle struct {
	Cutoff time.Time
	Reply  chan []string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetLobby) isHubMsg()    {}
func (RemoveLobby) isHubMsg() {}
func (SweepIdle) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	tokens  *token.Registry
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	log        *zap.Logger
	now        func() time.Time
	newCode    func() (string, error)
	lobbyOpts  []lobby.Option
	onFinished func(engine.Room)
}

type Option func(*Hub)

func WithLogger(log *zap.Logger) Option {
	return func(h *Hub) { h.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// WithCodeGenerator replaces GenerateCode, mostly for collision tests.
func WithCodeGenerator(fn func() (string, error)) Option {
	return func(h *Hub) { h.newCode = fn }
}

// WithOnFinished is handed to every lobby; see lobby.WithOnFinish.
func WithOnFinished(fn func(engine.Room)) Option {
	return func(h *Hub) { h.onFinished = fn }
}

func NewHub(parent context.Context, tokens *token.Registry, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		tokens:  tokens,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		log:     zap.NewNop(),
		now:     time.Now,
		newCode: GenerateCode,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.lobbyOpts = []lobby.Option{lobby.WithLogger(h.log), lobby.WithClock(h.now)}
	if h.onFinished != nil {
		h.lobbyOpts = append(h.lobbyOpts, lobby.WithOnFinish(h.onFinished))
	}

	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Tokens() *token.Registry { return h.tokens }

func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				msg.Reply <- h.create(msg.Team1, msg.Team2)

			case GetLobby:
				msg.Reply <- h.lobbies[msg.Code] // May be nil

			case RemoveLobby:
				removed := h.remove(msg.Code)
				if msg.Reply != nil {
					msg.Reply <- removed
				}

			case SweepIdle:
				msg.Reply <- h.sweep(msg.Cutoff)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(team1, team2 string) Created {
	var code string
	for attempt := 0; ; attempt++ {
		if attempt == maxCodeAttempts {
			return Created{Err: errors.New("could not find a free room code")}
		}
		c, err := h.newCode()
		if err != nil {
			return Created{Err: fmt.Errorf("generate room code: %w", err)}
		}
		if h.lobbies[c] == nil {
			code = c
			break
		}
		h.log.Debug("collision on code, regenerating", zap.String("code", c))
	}

	t1, t2, err := h.tokens.IssuePair(code, team1, team2)
	if err != nil {
		return Created{Err: err}
	}

	room := engine.NewRoom(code, team1, team2, t1, t2, h.now())
	lb := lobby.NewLobby(h.ctx, room, h.lobbyOpts...)
	h.lobbies[code] = lb

	h.log.Info("room created", zap.String("room_id", code), zap.String("team1", team1), zap.String("team2", team2))
	return Created{Lobby: lb, Room: room}
}

func (h *Hub) remove(code string) bool {
	lb := h.lobbies[code]
	if lb == nil {
		return false
	}
	delete(h.lobbies, code)
	h.tokens.RevokeRoom(code)
	lb.Close()
	return true
}

func (h *Hub) sweep(cutoff time.Time) []string {
	var removed []string
	for code, lb := range h.lobbies {
		ctx, cancel := context.WithTimeout(h.ctx, time.Second)
		v, err := lb.View(ctx)
		cancel()
		if err != nil {
			continue
		}
		if v.NumClients == 0 && v.LastActive.Before(cutoff) {
			h.remove(code)
			removed = append(removed, code)
		}
	}
	return removed
}

func (h *Hub) shutdown() {
	for code, lb := range h.lobbies {
		lb.Close()
		h.tokens.RevokeRoom(code)
	}
	clear(h.lobbies)
	h.cancel()
}

// CreateRoom validates the team names, allocates a fresh code and token
// pair, and starts the room's lobby.
func (h *Hub) CreateRoom(ctx context.Context, team1, team2 string) (*lobby.Lobby, engine.Room, error) {
	team1, team2 = strings.TrimSpace(team1), strings.TrimSpace(team2)
	if team1 == "" || team2 == "" || strings.EqualFold(team1, team2) {
		return nil, engine.Room{}, ErrInvalidTeams
	}

	reply := make(chan Created, 1)
	if err := h.send(ctx, CreateRoom{Team1: team1, Team2: team2, Reply: reply}); err != nil {
		return nil, engine.Room{}, err
	}
	select {
	case c := <-reply:
		return c.Lobby, c.Room, c.Err
	case <-h.done:
		return nil, engine.Room{}, ErrHubClosed
	case <-ctx.Done():
		return nil, engine.Room{}, ctx.Err()
	}
}

func (h *Hub) Get(ctx context.Context, code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.send(ctx, GetLobby{Code: code, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case lb := <-reply:
		if lb == nil {
			return nil, ErrRoomNotFound
		}
		return lb, nil
	case <-h.done:
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) Remove(ctx context.Context, code string) error {
	reply := make(chan bool, 1)
	if err := h.send(ctx, RemoveLobby{Code: code, Reply: reply}); err != nil {
		return err
	}
	select {
	case ok := <-reply:
		if !ok {
			return ErrRoomNotFound
		}
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Sweep(ctx context.Context, cutoff time.Time) ([]string, error) {
	reply := make(chan []string, 1)
	if err := h.send(ctx, SweepIdle{Cutoff: cutoff, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case codes := <-reply:
		return codes, nil
	case <-h.done:
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) Shutdown() { h.cancel() }

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
