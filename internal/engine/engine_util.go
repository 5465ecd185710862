package engine

import "time"

const (
	PullStrength   = 5
	ScorePerAnswer = 1
	RopeMin        = -50
	RopeMax        = 50
)

func NewRoom(id, team1, team2, team1Token, team2Token string, now time.Time) Room {
	return Room{
		ID:         id,
		Team1:      team1,
		Team2:      team2,
		Team1Token: team1Token,
		Team2Token: team2Token,
		CreatedAt:  now,
	}
}

func (r Room) Phase() Phase {
	if r.Winner != "" {
		return PhaseFinished
	}
	if r.GameStarted {
		return PhaseInProgress
	}
	return PhaseLobby
}

// Redacted returns a copy of r without the join tokens, for recipients that
// are not the room admin.
func (r Room) Redacted() Room {
	r.Team1Token = ""
	r.Team2Token = ""
	return r
}

// TeamName returns the display name bound to a team role.
func (r Room) TeamName(role Role) string {
	switch role {
	case RoleTeam1:
		return r.Team1
	case RoleTeam2:
		return r.Team2
	}
	return ""
}

// SideOf maps a team role to the side it pulls.
func SideOf(role Role) (Side, bool) {
	switch role {
	case RoleTeam1:
		return SideA, true
	case RoleTeam2:
		return SideB, true
	}
	return "", false
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func clampRope(pos int) int {
	return max(RopeMin, min(RopeMax, pos))
}
