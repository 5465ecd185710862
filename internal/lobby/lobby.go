package lobby

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tug-of-war-backend/internal/engine"
)

var ErrLobbyClosed = errors.New("lobby closed")

type Msg interface{ isLobbyMsg() }

// FromClient asks the lobby to apply a game command. Reply is optional.
type FromClient struct {
	Cmd   engine.Command
	Reply chan Result
}

func (FromClient) isLobbyMsg() {}

type Result struct {
	Room engine.Room
	Err  error
}

type Join struct {
	ClientID string
	Role     engine.Role
	Outbox   chan Snapshot // where this client wants to receive snapshots
	// Greeting is sent to the joiner alone once the join is applied.
	// KindRoomCreated suppresses the room-wide room_update.
	Greeting Kind
	// Evict is called if the lobby gives up on this client (slow outbox or
	// shutdown). Must not block.
	Evict func()
	Reply chan error
}

func (Join) isLobbyMsg() {}

type Leave struct {
	ClientID string
	Done     chan struct{}
}

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type Kind string

const (
	KindRoomCreated       Kind = "room_created"
	KindJoinedRoom        Kind = "joined_room"
	KindRoomUpdate        Kind = "room_update"
	KindGameStarted       Kind = "game_started"
	KindRopeUpdated       Kind = "rope_updated"
	KindGameReset         Kind = "game_reset"
	KindAdminDisconnected Kind = "admin_disconnected"
	KindTeamDisconnected  Kind = "team_disconnected"
)

// Snapshot is one outbound message for one client. Room is already redacted
// for the recipient.
type Snapshot struct {
	Kind      Kind
	Version   int
	Room      engine.Room
	Recipient engine.Role
	// Subject is the departed role on *_disconnected notices.
	Subject engine.Role
}

type View struct {
	Version    int
	NumClients int
	State      engine.Room
	LastActive time.Time
}

type client struct {
	role   engine.Role
	outbox chan Snapshot
	evict  func()
}

type Lobby struct {
	inbox      chan Msg
	state      engine.Room
	version    int
	clients    map[string]client
	counts     map[engine.Role]int
	lastActive time.Time
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	log      *zap.Logger
	now      func() time.Time
	onFinish func(engine.Room)
}

type Option func(*Lobby)

func WithLogger(log *zap.Logger) Option {
	return func(l *Lobby) { l.log = log }
}

// WithOnFinish registers a hook run on the lobby goroutine whenever the room
// gets a winner. It must not block.
func WithOnFinish(fn func(engine.Room)) Option {
	return func(l *Lobby) { l.onFinish = fn }
}

func WithClock(now func() time.Time) Option {
	return func(l *Lobby) { l.now = now }
}

func NewLobby(parent context.Context, initial engine.Room, opts ...Option) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	l := &Lobby{
		inbox:   make(chan Msg, 64), // Small buffer
		state:   initial,
		version: 0,
		clients: make(map[string]client),
		counts:  make(map[engine.Role]int),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With(zap.String("room_id", initial.ID))
	l.lastActive = l.now()

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.lastActive = l.now()
				l.join(msg)
				if msg.Reply != nil {
					msg.Reply <- nil
				}

			case Leave:
				l.lastActive = l.now()
				l.leave(msg.ClientID)
				if msg.Done != nil {
					close(msg.Done)
				}

			case FromClient:
				l.lastActive = l.now()
				res := l.apply(msg.Cmd)
				if msg.Reply != nil {
					msg.Reply <- res
				}

			case GetState:
				msg.Reply <- View{
					Version:    l.version,
					NumClients: len(l.clients),
					State:      l.state,
					LastActive: l.lastActive,
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) join(msg Join) {
	prev, rejoin := l.clients[msg.ClientID]
	l.clients[msg.ClientID] = client{role: msg.Role, outbox: msg.Outbox, evict: msg.Evict}

	// A rejoin under the same role keeps its count. Under another role the
	// new role connects before the old one is released.
	released := false
	if !rejoin || prev.role != msg.Role {
		l.counts[msg.Role]++
		if l.counts[msg.Role] == 1 {
			l.commit(engine.Command{Type: engine.CmdSetConnected, Role: msg.Role, Connected: true})
		}
		if rejoin {
			released = l.release(prev.role)
		}
	}

	if msg.Greeting != KindRoomCreated {
		l.publish(KindRoomUpdate, "")
	}
	if released {
		l.publish(noticeFor(prev.role), prev.role)
	}

	if msg.Greeting != "" {
		if c, ok := l.clients[msg.ClientID]; ok && !l.deliver(msg.ClientID, c, msg.Greeting, "") {
			l.settle([]engine.Role{c.role})
		}
	}

	l.log.Info("client joined",
		zap.String("conn_id", msg.ClientID),
		zap.String("role", string(msg.Role)),
		zap.Int("clients", len(l.clients)))
}

func (l *Lobby) leave(clientID string) {
	c, ok := l.clients[clientID]
	if !ok {
		return
	}
	delete(l.clients, clientID)

	l.log.Info("client left", zap.String("conn_id", clientID), zap.String("role", string(c.role)))

	if l.release(c.role) {
		l.publish(KindRoomUpdate, "")
		l.publish(noticeFor(c.role), c.role)
	}
}

func (l *Lobby) apply(cmd engine.Command) Result {
	events, newState, err := engine.Apply(l.state, cmd)
	if err != nil {
		return Result{Room: l.state, Err: err}
	}
	if events == nil {
		return Result{Room: l.state}
	}

	l.state = newState
	l.version++
	l.publish(kindFor(cmd.Type), "")

	if engine.ContainsEvent(events, engine.EvtGameWon) {
		l.log.Info("game won",
			zap.String("winner", l.state.Winner),
			zap.Int("team1_score", l.state.Team1Score),
			zap.Int("team2_score", l.state.Team2Score))
		if l.onFinish != nil {
			l.onFinish(l.state)
		}
	}
	return Result{Room: l.state}
}

// commit applies cmd without broadcasting. Reports whether state changed.
func (l *Lobby) commit(cmd engine.Command) bool {
	events, newState, err := engine.Apply(l.state, cmd)
	if err != nil || events == nil {
		return false
	}
	l.state = newState
	l.version++
	return true
}

// release drops one live binding for role and clears its connected flag when
// none remain.
func (l *Lobby) release(role engine.Role) bool {
	l.counts[role]--
	if l.counts[role] > 0 {
		return false
	}
	delete(l.counts, role)
	return l.commit(engine.Command{Type: engine.CmdSetConnected, Role: role, Connected: false})
}

// publish fans a snapshot out to every client. Clients that cannot keep up
// are dropped, and the resulting flag changes are published in turn.
func (l *Lobby) publish(kind Kind, subject engine.Role) {
	l.settle(l.broadcast(kind, subject))
}

func (l *Lobby) settle(pending []engine.Role) {
	for len(pending) > 0 {
		role := pending[0]
		pending = pending[1:]
		if l.release(role) {
			pending = append(pending, l.broadcast(KindRoomUpdate, "")...)
			pending = append(pending, l.broadcast(noticeFor(role), role)...)
		}
	}
}

// broadcast returns the roles of the clients it dropped.
func (l *Lobby) broadcast(kind Kind, subject engine.Role) []engine.Role {
	var dropped []engine.Role
	for id, c := range l.clients {
		if !l.deliver(id, c, kind, subject) {
			dropped = append(dropped, c.role)
		}
	}
	return dropped
}

func (l *Lobby) deliver(id string, c client, kind Kind, subject engine.Role) bool {
	room := l.state
	if c.role != engine.RoleAdmin {
		room = room.Redacted()
	}
	snap := Snapshot{Kind: kind, Version: l.version, Room: room, Recipient: c.role, Subject: subject}

	select {
	case c.outbox <- snap:
		return true
	default:
		// Client is slow/full - drop them.
		delete(l.clients, id)
		if c.evict != nil {
			c.evict()
		}
		l.log.Warn("dropped slow client", zap.String("conn_id", id), zap.String("kind", string(kind)))
		return false
	}
}

func (l *Lobby) shutdown() {
	for id, c := range l.clients {
		if c.evict != nil {
			c.evict()
		}
		delete(l.clients, id)
	}
	clear(l.counts)
	l.cancel()
}

func kindFor(t engine.CommandType) Kind {
	switch t {
	case engine.CmdStartGame:
		return KindGameStarted
	case engine.CmdCorrectAnswer:
		return KindRopeUpdated
	case engine.CmdResetGame:
		return KindGameReset
	default:
		return KindRoomUpdate
	}
}

func noticeFor(role engine.Role) Kind {
	if role == engine.RoleAdmin {
		return KindAdminDisconnected
	}
	return KindTeamDisconnected
}

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

func (l *Lobby) ID() string { return l.state.ID }

// Done is closed once the lobby goroutine has exited.
func (l *Lobby) Done() <-chan struct{} { return l.done }

func (l *Lobby) Close() { l.cancel() }
