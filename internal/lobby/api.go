package lobby

import (
	"context"

	"github.com/DoyleJ11/tug-of-war-backend/internal/engine"
)

// JoinClient registers a client and waits until the join has been applied
// and broadcast.
func (l *Lobby) JoinClient(ctx context.Context, j Join) error {
	j.Reply = make(chan error, 1)
	if err := l.send(ctx, j); err != nil {
		return err
	}
	select {
	case err := <-j.Reply:
		return err
	case <-l.done:
		return ErrLobbyClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LeaveClient unregisters a client. When it returns, any resulting
// disconnect snapshot has already been handed to the remaining clients.
func (l *Lobby) LeaveClient(ctx context.Context, clientID string) error {
	done := make(chan struct{})
	if err := l.send(ctx, Leave{ClientID: clientID, Done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-l.done:
		return ErrLobbyClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Apply runs cmd through the lobby's serialized queue.
func (l *Lobby) Apply(ctx context.Context, cmd engine.Command) (engine.Room, error) {
	reply := make(chan Result, 1)
	if err := l.send(ctx, FromClient{Cmd: cmd, Reply: reply}); err != nil {
		return engine.Room{}, err
	}
	select {
	case res := <-reply:
		return res.Room, res.Err
	case <-l.done:
		return engine.Room{}, ErrLobbyClosed
	case <-ctx.Done():
		return engine.Room{}, ctx.Err()
	}
}

func (l *Lobby) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := l.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.done:
		return View{}, ErrLobbyClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (l *Lobby) send(ctx context.Context, m Msg) error {
	select {
	case l.inbox <- m:
		return nil
	case <-l.done:
		return ErrLobbyClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
