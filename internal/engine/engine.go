package engine

import (
	"errors"
	"time"
)

var ErrNotStarted = errors.New("game has not started")
var ErrAlreadyFinished = errors.New("game already finished")
var ErrInvalidSide = errors.New("invalid answering team")
var ErrInvalidRole = errors.New("invalid role")
var ErrUnsupportedCommand = errors.New("unsupported command")

// Side identifies the answering team on the wire: "A" pulls toward team1,
// "B" toward team2.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// Role is the identity a connection holds inside a room.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleTeam1 Role = "team1"
	RoleTeam2 Role = "team2"
)

type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseInProgress Phase = "in_progress"
	PhaseFinished   Phase = "finished"
)

// Room is the authoritative state of one game room.
type Room struct {
	ID             string
	Team1          string
	Team2          string
	Team1Token     string
	Team2Token     string
	RopePosition   int
	Team1Score     int
	Team2Score     int
	Team1Connected bool
	Team2Connected bool
	AdminConnected bool
	GameStarted    bool
	Winner         string
	CreatedAt      time.Time
}

type CommandType string

const (
	CmdStartGame     CommandType = "StartGame"
	CmdCorrectAnswer CommandType = "CorrectAnswer"
	CmdResetGame     CommandType = "ResetGame"
	CmdSetConnected  CommandType = "SetConnected"
)

/*
	CmdStartGame     -> EvtGameStarted                 (Lobby only, no-op otherwise)
	CmdCorrectAnswer -> EvtRopeMoved [-> EvtGameWon]   (InProgress only)
	CmdResetGame     -> EvtGameReset                   (any phase)
	CmdSetConnected  -> EvtConnected | EvtDisconnected (only when the flag flips)
*/

type Command struct {
	Type      CommandType
	Side      Side
	Role      Role
	Connected bool
}

type EventType string

const (
	EvtGameStarted  EventType = "GameStarted"
	EvtRopeMoved    EventType = "RopeMoved"
	EvtGameWon      EventType = "GameWon"
	EvtGameReset    EventType = "GameReset"
	EvtConnected    EventType = "Connected"
	EvtDisconnected EventType = "Disconnected"
)

type Event struct {
	Type   EventType
	Side   Side
	Role   Role
	Winner string
	Rope   int
}

// Apply validates cmd against s and returns the resulting events and state.
// On error the returned state is s, untouched. A nil event slice with a nil
// error means the command was a no-op.
func Apply(s Room, cmd Command) ([]Event, Room, error) {
	newState := s

	switch cmd.Type {
	case CmdStartGame:
		if s.Phase() != PhaseLobby {
			return nil, s, nil
		}
		newState.GameStarted = true
		return []Event{{Type: EvtGameStarted}}, newState, nil

	case CmdCorrectAnswer:
		switch s.Phase() {
		case PhaseLobby:
			return nil, s, ErrNotStarted
		case PhaseFinished:
			return nil, s, ErrAlreadyFinished
		}

		switch cmd.Side {
		case SideA:
			newState.RopePosition = clampRope(s.RopePosition - PullStrength)
			newState.Team1Score += ScorePerAnswer
		case SideB:
			newState.RopePosition = clampRope(s.RopePosition + PullStrength)
			newState.Team2Score += ScorePerAnswer
		default:
			return nil, s, ErrInvalidSide
		}

		events := []Event{{Type: EvtRopeMoved, Side: cmd.Side, Rope: newState.RopePosition}}

		if winner, ok := winnerAt(newState); ok {
			newState.Winner = winner
			events = append(events, Event{Type: EvtGameWon, Side: cmd.Side, Winner: winner, Rope: newState.RopePosition})
		}
		return events, newState, nil

	case CmdResetGame:
		newState.RopePosition = 0
		newState.Team1Score = 0
		newState.Team2Score = 0
		newState.Winner = ""
		newState.GameStarted = false
		return []Event{{Type: EvtGameReset}}, newState, nil

	case CmdSetConnected:
		var flag *bool
		switch cmd.Role {
		case RoleAdmin:
			flag = &newState.AdminConnected
		case RoleTeam1:
			flag = &newState.Team1Connected
		case RoleTeam2:
			flag = &newState.Team2Connected
		default:
			return nil, s, ErrInvalidRole
		}

		if *flag == cmd.Connected {
			return nil, s, nil
		}
		*flag = cmd.Connected

		evt := EvtDisconnected
		if cmd.Connected {
			evt = EvtConnected
		}
		return []Event{{Type: evt, Role: cmd.Role}}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func winnerAt(s Room) (string, bool) {
	switch s.RopePosition {
	case RopeMin:
		return s.Team1, true
	case RopeMax:
		return s.Team2, true
	}
	return "", false
}
