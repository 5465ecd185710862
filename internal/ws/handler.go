package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tug-of-war-backend/internal/engine"
	"github.com/DoyleJ11/tug-of-war-backend/internal/lobby"
	"github.com/DoyleJ11/tug-of-war-backend/internal/session"
	"github.com/DoyleJ11/tug-of-war-backend/internal/wire"
	"github.com/DoyleJ11/tug-of-war-backend/pkg/types"
)

const (
	outboxSize     = 32
	requestTimeout = 5 * time.Second
	unbindTimeout  = 5 * time.Second
)

type Options struct {
	Logger *zap.Logger
	// OriginPatterns is passed to websocket.AcceptOptions; "*" disables the
	// origin check.
	OriginPatterns []string
	PublicURL      string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
}

type client struct {
	id      string
	conn    *websocket.Conn
	binder  *session.Binder
	outbox  chan lobby.Snapshot
	direct  chan types.Envelope
	baseURL string
	opts    Options
	log     *zap.Logger
}

func Handler(b *session.Binder, opts Options) http.HandlerFunc {
	opts.defaults()

	return func(w http.ResponseWriter, r *http.Request) {
		accept := &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns}
		for _, p := range opts.OriginPatterns {
			if p == "*" {
				accept.InsecureSkipVerify = true
			}
		}

		conn, err := websocket.Accept(w, r, accept)
		if err != nil {
			opts.Logger.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		c := &client{
			id:      uuid.NewString(),
			conn:    conn,
			binder:  b,
			outbox:  make(chan lobby.Snapshot, outboxSize),
			direct:  make(chan types.Envelope, 8),
			baseURL: wire.BaseURL(r, opts.PublicURL),
			opts:    opts,
		}
		c.log = opts.Logger.With(zap.String("conn_id", c.id))
		c.log.Info("connected", zap.String("remote", r.RemoteAddr))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sc := session.Conn{ID: c.id, Outbox: c.outbox, Evict: cancel}
		defer func() {
			// Runs after the reader stops, so no further broadcast can show
			// this connection as live.
			uctx, ucancel := context.WithTimeout(context.WithoutCancel(r.Context()), unbindTimeout)
			defer ucancel()
			if err := b.Unbind(uctx, c.id); err != nil {
				c.log.Warn("unbind failed", zap.Error(err))
			}
			c.log.Info("disconnected")
		}()

		go c.writePump(ctx, cancel)
		go c.heartbeat(ctx, cancel)
		c.readPump(ctx, sc)
	}
}

func (c *client) readPump(ctx context.Context, sc session.Conn) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			// Treat clean close/going-away as normal:
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			if ctx.Err() == nil {
				c.log.Debug("read failed", zap.Error(err))
			}
			return
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.sendError(ctx, "bad json")
			continue
		}

		rctx, cancel := context.WithTimeout(ctx, requestTimeout)
		err = c.dispatch(rctx, sc, env)
		cancel()
		if err != nil {
			c.fail(ctx, env.Type, err)
		}
	}
}

var errUnknownEvent = errors.New("unknown event")

func (c *client) dispatch(ctx context.Context, sc session.Conn, env types.Envelope) error {
	switch env.Type {
	case types.EventCreateRoom:
		var req types.CreateRoomRequest
		if err := wire.Decode(env, &req); err != nil {
			return badRequest(err)
		}
		_, err := c.binder.CreateRoom(ctx, sc, req.Team1, req.Team2, req.AdminToken)
		return err

	case types.EventJoinRoom:
		var req types.JoinRoomRequest
		if err := wire.Decode(env, &req); err != nil {
			return badRequest(err)
		}
		if req.IsAdmin {
			return c.binder.JoinAsAdmin(ctx, sc, req.RoomID, req.AdminToken)
		}
		return c.binder.JoinAsTeam(ctx, sc, req.RoomID, req.TeamToken)

	case types.EventStartGame:
		var req types.RoomRequest
		if err := wire.Decode(env, &req); err != nil {
			return badRequest(err)
		}
		_, err := c.binder.StartGame(ctx, c.id, req.RoomID)
		return err

	case types.EventUpdateRope:
		var req types.UpdateRopeRequest
		if err := wire.Decode(env, &req); err != nil {
			return badRequest(err)
		}
		_, err := c.binder.CorrectAnswer(ctx, c.id, req.RoomID, engine.Side(req.TeamAnswering))
		return err

	case types.EventResetGame:
		var req types.RoomRequest
		if err := wire.Decode(env, &req); err != nil {
			return badRequest(err)
		}
		_, err := c.binder.ResetGame(ctx, c.id, req.RoomID)
		return err

	default:
		return errUnknownEvent
	}
}

type badRequestError struct{ err error }

func (e badRequestError) Error() string { return "bad request: " + e.err.Error() }
func (e badRequestError) Unwrap() error { return e.err }

func badRequest(err error) error { return badRequestError{err: err} }

func (c *client) fail(ctx context.Context, event string, err error) {
	var br badRequestError
	switch {
	case errors.As(err, &br):
		c.sendError(ctx, "bad "+event+" payload")
		return
	case errors.Is(err, errUnknownEvent):
		c.sendError(ctx, "unknown event "+event)
		return
	}

	msg, public := session.Message(err)
	if !public {
		c.log.Error("request failed", zap.String("event", event), zap.Error(err))
	} else {
		c.log.Debug("request rejected", zap.String("event", event), zap.Error(err))
	}
	c.sendError(ctx, msg)
}

func (c *client) sendError(ctx context.Context, message string) {
	select {
	case c.direct <- wire.Error(message):
	case <-ctx.Done():
	default:
		c.log.Warn("error dropped, connection backlogged", zap.String("message", message))
	}
}

func (c *client) writePump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		var env types.Envelope
		select {
		case <-ctx.Done():
			return
		case env = <-c.direct:
		case snap := <-c.outbox:
			var err error
			env, err = wire.Encode(snap, c.baseURL)
			if err != nil {
				c.log.Error("encode snapshot", zap.Error(err))
				continue
			}
		}

		payload, err := json.Marshal(env)
		if err != nil {
			c.log.Error("marshal envelope", zap.Error(err))
			continue
		}
		wctx, wcancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
		err = c.conn.Write(wctx, websocket.MessageText, payload)
		wcancel()
		if err != nil {
			return
		}
	}
}

func (c *client) heartbeat(ctx context.Context, cancel context.CancelFunc) {
	t := time.NewTicker(c.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, pcancel := context.WithTimeout(ctx, c.opts.PingInterval)
			err := c.conn.Ping(pctx)
			pcancel()
			if err != nil {
				c.log.Debug("ping failed", zap.Error(err))
				cancel()
				return
			}
		}
	}
}
