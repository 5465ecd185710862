package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/DoyleJ11/tug-of-war-backend/internal/engine"
)

type fakeRecorder struct {
	got chan MatchResult
	err error
}

func (f *fakeRecorder) Record(ctx context.Context, r MatchResult) error {
	f.got <- r
	return f.err
}

func finishedRoom() engine.Room {
	r := engine.NewRoom("ABC123", "Red", "Blue", "t1", "t2", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	r.GameStarted = true
	r.RopePosition = engine.RopeMax
	r.Team1Score, r.Team2Score = 3, 13
	r.Winner = "Blue"
	return r
}

func TestFromRoom(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)
	got := FromRoom(finishedRoom(), at)

	assert.Equal(t, MatchResult{
		RoomID: "ABC123", Team1: "Red", Team2: "Blue", Winner: "Blue",
		Team1Score: 3, Team2Score: 13,
		RoomOpened: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		FinishedAt: at,
	}, got)
}

func TestSink_RecordsWithoutBlocking(t *testing.T) {
	rec := &fakeRecorder{got: make(chan MatchResult, 1)}
	hook := Sink(context.Background(), rec, zap.NewNop(), time.Second)

	hook(finishedRoom())

	select {
	case r := <-rec.got:
		assert.Equal(t, "Blue", r.Winner)
		assert.Equal(t, 13, r.Team2Score)
	case <-time.After(time.Second):
		t.Fatalf("result never recorded")
	}
}

func TestSink_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	rec := &fakeRecorder{got: make(chan MatchResult, 1), err: errors.New("db down")}
	hook := Sink(context.Background(), rec, zap.New(core), time.Second)

	hook(finishedRoom())
	<-rec.got

	require.Eventually(t, func() bool { return logs.Len() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "archive match result", logs.All()[0].Message)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Record(context.Background(), MatchResult{}))
}
