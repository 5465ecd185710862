package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/tug-of-war-backend/internal/engine"
	"github.com/DoyleJ11/tug-of-war-backend/internal/hub"
	"github.com/DoyleJ11/tug-of-war-backend/internal/lobby"
	"github.com/DoyleJ11/tug-of-war-backend/internal/token"
)

func newBinder(t *testing.T, adminCode string) *Binder {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := hub.NewHub(ctx, token.NewRegistry())
	return NewBinder(h, adminCode, zaptest.NewLogger(t))
}

func newConn(id string) Conn {
	return Conn{ID: id, Outbox: make(chan lobby.Snapshot, 64)}
}

// drain returns every snapshot currently queued for c.
func drain(c Conn) []lobby.Snapshot {
	var out []lobby.Snapshot
	for {
		select {
		case s := <-c.Outbox:
			out = append(out, s)
		case <-time.After(50 * time.Millisecond):
			return out
		}
	}
}

func last(t *testing.T, c Conn) lobby.Snapshot {
	t.Helper()
	snaps := drain(c)
	require.NotEmpty(t, snaps, "expected at least one snapshot for %s", c.ID)
	return snaps[len(snaps)-1]
}

func TestEndToEnd_RedBlueMatch(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t, "")

	admin := newConn("admin")
	room, err := b.CreateRoom(ctx, admin, "Red", "Blue", "")
	require.NoError(t, err)
	require.NotEmpty(t, room.Team1Token)
	require.NotEmpty(t, room.Team2Token)

	created := last(t, admin)
	assert.Equal(t, lobby.KindRoomCreated, created.Kind)
	assert.True(t, created.Room.AdminConnected)

	// a second admin screen joins explicitly
	screen := newConn("screen")
	require.NoError(t, b.JoinAsAdmin(ctx, screen, room.ID, ""))

	red, blue := newConn("red"), newConn("blue")
	require.NoError(t, b.JoinAsTeam(ctx, red, room.ID, room.Team1Token))
	require.NoError(t, b.JoinAsTeam(ctx, blue, room.ID, room.Team2Token))

	upd := last(t, admin)
	assert.Equal(t, lobby.KindRoomUpdate, upd.Kind)
	assert.True(t, upd.Room.Team1Connected)
	assert.True(t, upd.Room.Team2Connected)

	greet := last(t, blue)
	assert.Equal(t, lobby.KindJoinedRoom, greet.Kind)
	assert.Equal(t, engine.RoleTeam2, greet.Recipient)
	drain(red)
	drain(screen)

	started, err := b.StartGame(ctx, admin.ID, room.ID)
	require.NoError(t, err)
	assert.True(t, started.GameStarted)
	snap := last(t, red)
	assert.Equal(t, lobby.KindGameStarted, snap.Kind)
	assert.True(t, snap.Room.GameStarted)

	for range 10 {
		_, err := b.CorrectAnswer(ctx, red.ID, room.ID, engine.SideA)
		require.NoError(t, err)
	}
	snap = last(t, blue)
	assert.Equal(t, lobby.KindRopeUpdated, snap.Kind)
	assert.Equal(t, engine.RopeMin, snap.Room.RopePosition)
	assert.Equal(t, "Red", snap.Room.Winner)
	assert.Equal(t, 10, snap.Room.Team1Score)
	assert.Zero(t, snap.Room.Team2Score)

	_, err = b.CorrectAnswer(ctx, blue.ID, room.ID, engine.SideB)
	assert.ErrorIs(t, err, engine.ErrAlreadyFinished)

	_, err = b.ResetGame(ctx, admin.ID, room.ID)
	require.NoError(t, err)
	snap = last(t, screen)
	assert.Equal(t, lobby.KindGameReset, snap.Kind)
	assert.Zero(t, snap.Room.RopePosition)
	assert.Empty(t, snap.Room.Winner)
	assert.Zero(t, snap.Room.Team1Score)
	assert.Zero(t, snap.Room.Team2Score)
	assert.False(t, snap.Room.GameStarted)
	assert.True(t, snap.Room.Team1Connected)
	assert.True(t, snap.Room.Team2Connected)
	assert.True(t, snap.Room.AdminConnected)
}

func TestJoinAsTeam_Rejections(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t, "")

	roomX, err := b.CreateRoom(ctx, newConn("adminX"), "Red", "Blue", "")
	require.NoError(t, err)
	roomY, err := b.CreateRoom(ctx, newConn("adminY"), "Cats", "Dogs", "")
	require.NoError(t, err)

	cases := []struct {
		name    string
		roomID  string
		token   string
		wantErr error
	}{
		{name: "swapped token", roomID: roomX.ID, token: roomY.Team1Token, wantErr: ErrTokenRoomMismatch},
		{name: "other swapped token", roomID: roomY.ID, token: roomX.Team2Token, wantErr: ErrTokenRoomMismatch},
		{name: "made-up token", roomID: roomX.ID, token: "deadbeef", wantErr: ErrInvalidToken},
		{name: "anonymous", roomID: roomX.ID, token: "", wantErr: ErrTokenMissing},
		{name: "unknown room", roomID: "ZZZZZZ", token: roomX.Team1Token, wantErr: ErrRoomNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newConn("intruder-" + tc.name)
			err := b.JoinAsTeam(ctx, c, tc.roomID, tc.token)
			assert.ErrorIs(t, err, tc.wantErr)
			_, bound := b.Binding(c.ID)
			assert.False(t, bound)
			assert.Empty(t, drain(c))
		})
	}
}

func TestJoinUnknownRoom_NoBroadcast(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t, "")

	admin := newConn("admin")
	_, err := b.CreateRoom(ctx, admin, "Red", "Blue", "")
	require.NoError(t, err)
	drain(admin)

	err = b.JoinAsAdmin(ctx, newConn("lost"), "NOPE00", "")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Empty(t, drain(admin))
}

func TestAdminCodeGatesCreateAndAdminJoin(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t, "s3cret")

	_, err := b.CreateRoom(ctx, newConn("a"), "Red", "Blue", "wrong")
	assert.ErrorIs(t, err, ErrAdminCodeRequired)

	room, err := b.CreateRoom(ctx, newConn("a"), "Red", "Blue", "s3cret")
	require.NoError(t, err)

	assert.ErrorIs(t, b.JoinAsAdmin(ctx, newConn("b"), room.ID, ""), ErrAdminCodeRequired)
	assert.NoError(t, b.JoinAsAdmin(ctx, newConn("c"), room.ID, "s3cret"))

	assert.True(t, b.AdminCodeOK("s3cret"))
	assert.False(t, b.AdminCodeOK("nope"))
	assert.False(t, newBinder(t, "").AdminCodeOK(""))
}

func TestGameActionsRequireBinding(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t, "")

	admin := newConn("admin")
	room, err := b.CreateRoom(ctx, admin, "Red", "Blue", "")
	require.NoError(t, err)
	other, err := b.CreateRoom(ctx, newConn("admin2"), "Cats", "Dogs", "")
	require.NoError(t, err)

	red := newConn("red")
	require.NoError(t, b.JoinAsTeam(ctx, red, room.ID, room.Team1Token))

	_, err = b.StartGame(ctx, red.ID, room.ID)
	assert.ErrorIs(t, err, ErrNotAdmin)
	_, err = b.StartGame(ctx, "stranger", room.ID)
	assert.ErrorIs(t, err, ErrNotAdmin)
	_, err = b.StartGame(ctx, admin.ID, other.ID)
	assert.ErrorIs(t, err, ErrNotAdmin)
	_, err = b.StartGame(ctx, admin.ID, "NOPE00")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = b.StartGame(ctx, admin.ID, room.ID)
	require.NoError(t, err)

	_, err = b.CorrectAnswer(ctx, "stranger", room.ID, engine.SideA)
	assert.ErrorIs(t, err, ErrNotInRoom)
	_, err = b.CorrectAnswer(ctx, red.ID, room.ID, engine.SideB)
	assert.ErrorIs(t, err, ErrWrongSide)
	_, err = b.CorrectAnswer(ctx, red.ID, room.ID, "Z")
	assert.ErrorIs(t, err, engine.ErrInvalidSide)

	// the admin screen may score for either team
	r, err := b.CorrectAnswer(ctx, admin.ID, room.ID, engine.SideB)
	require.NoError(t, err)
	assert.Equal(t, engine.PullStrength, r.RopePosition)

	_, err = b.ResetGame(ctx, red.ID, room.ID)
	assert.ErrorIs(t, err, ErrNotAdmin)
}

func TestUnbind_IsSymmetricForAdminAndTeams(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t, "")

	admin := newConn("admin")
	room, err := b.CreateRoom(ctx, admin, "Red", "Blue", "")
	require.NoError(t, err)
	red, blue := newConn("red"), newConn("blue")
	require.NoError(t, b.JoinAsTeam(ctx, red, room.ID, room.Team1Token))
	require.NoError(t, b.JoinAsTeam(ctx, blue, room.ID, room.Team2Token))
	drain(admin)
	drain(blue)

	require.NoError(t, b.Unbind(ctx, red.ID))
	snaps := drain(admin)
	require.Len(t, snaps, 2)
	assert.Equal(t, lobby.KindRoomUpdate, snaps[0].Kind)
	assert.False(t, snaps[0].Room.Team1Connected)
	assert.Equal(t, lobby.KindTeamDisconnected, snaps[1].Kind)
	assert.Equal(t, engine.RoleTeam1, snaps[1].Subject)
	drain(blue)

	require.NoError(t, b.Unbind(ctx, admin.ID))
	snaps = drain(blue)
	require.Len(t, snaps, 2)
	assert.False(t, snaps[0].Room.AdminConnected)
	assert.Equal(t, lobby.KindAdminDisconnected, snaps[1].Kind)

	// unknown and repeated unbinds are harmless
	assert.NoError(t, b.Unbind(ctx, admin.ID))
	assert.NoError(t, b.Unbind(ctx, "never-bound"))
}

func TestRejoinAnotherRoomReleasesPrevious(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t, "")

	roomX, err := b.CreateRoom(ctx, newConn("adminX"), "Red", "Blue", "")
	require.NoError(t, err)
	roomY, err := b.CreateRoom(ctx, newConn("adminY"), "Cats", "Dogs", "")
	require.NoError(t, err)

	c := newConn("wanderer")
	require.NoError(t, b.JoinAsTeam(ctx, c, roomX.ID, roomX.Team1Token))
	require.NoError(t, b.JoinAsTeam(ctx, c, roomY.ID, roomY.Team2Token))

	bd, ok := b.Binding(c.ID)
	require.True(t, ok)
	assert.Equal(t, roomY.ID, bd.RoomID)
	assert.Equal(t, engine.RoleTeam2, bd.Role)

	lbX, err := b.hub.Get(ctx, roomX.ID)
	require.NoError(t, err)
	v, err := lbX.View(ctx)
	require.NoError(t, err)
	assert.False(t, v.State.Team1Connected)
}

func TestJoinAsTeamAgain_KeepsTeamConnected(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t, "")

	admin := newConn("admin")
	room, err := b.CreateRoom(ctx, admin, "Red", "Blue", "")
	require.NoError(t, err)

	red := newConn("red")
	require.NoError(t, b.JoinAsTeam(ctx, red, room.ID, room.Team1Token))
	drain(admin)

	require.NoError(t, b.JoinAsTeam(ctx, red, room.ID, room.Team1Token))

	snaps := drain(admin)
	require.Len(t, snaps, 1)
	assert.Equal(t, lobby.KindRoomUpdate, snaps[0].Kind)
	assert.True(t, snaps[0].Room.Team1Connected)

	// the repeated join is still one binding
	require.NoError(t, b.Unbind(ctx, red.ID))
	snaps = drain(admin)
	require.Len(t, snaps, 2)
	assert.False(t, snaps[0].Room.Team1Connected)
	assert.Equal(t, lobby.KindTeamDisconnected, snaps[1].Kind)
}

func TestBind_CancelledJoinLeavesNoGhost(t *testing.T) {
	b := newBinder(t, "")
	admin := Conn{ID: "admin", Outbox: make(chan lobby.Snapshot, 1024)}
	room, err := b.CreateRoom(context.Background(), admin, "Red", "Blue", "")
	require.NoError(t, err)
	lb, err := b.hub.Get(context.Background(), room.ID)
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	bound := 0
	for i := range 40 {
		c := Conn{ID: fmt.Sprintf("tab-%d", i), Outbox: make(chan lobby.Snapshot, 256)}
		err := b.bind(cancelled, c, lb, engine.RoleTeam1, lobby.KindJoinedRoom)
		_, ok := b.Binding(c.ID)
		if err == nil {
			assert.True(t, ok, "%s joined without a binding", c.ID)
			bound++
		} else {
			assert.False(t, ok, "%s failed but kept a binding", c.ID)
		}
	}

	v, err := lb.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1+bound, v.NumClients, "lobby clients must match recorded bindings")
	assert.Equal(t, bound > 0, v.State.Team1Connected)
}

func TestMessage(t *testing.T) {
	msg, ok := Message(ErrTokenRoomMismatch)
	assert.True(t, ok)
	assert.Equal(t, "Token does not match this room", msg)

	msg, ok = Message(engine.ErrAlreadyFinished)
	assert.True(t, ok)
	assert.Equal(t, "Game is already finished", msg)

	msg, ok = Message(assert.AnError)
	assert.False(t, ok)
	assert.Equal(t, internalMessage, msg)
}
