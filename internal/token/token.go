package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/DoyleJ11/tug-of-war-backend/internal/engine"
)

var ErrNotFound = errors.New("token not found")

// tokenBytes gives 128 bits of entropy per token.
const tokenBytes = 16

// Grant is what a join token resolves to.
type Grant struct {
	RoomID   string
	TeamName string
	Role     engine.Role
}

func (g Grant) IsTeam1() bool { return g.Role == engine.RoleTeam1 }

// Registry maps bearer join tokens to the room/team they admit.
type Registry struct {
	mu     sync.RWMutex
	grants map[string]Grant
	byRoom map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{
		grants: make(map[string]Grant),
		byRoom: make(map[string][]string),
	}
}

// IssuePair creates the two join tokens for roomID.
func (r *Registry) IssuePair(roomID, team1, team2 string) (string, string, error) {
	t1, err := r.newToken()
	if err != nil {
		return "", "", err
	}
	t2, err := r.newToken()
	if err != nil {
		return "", "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[t1] = Grant{RoomID: roomID, TeamName: team1, Role: engine.RoleTeam1}
	r.grants[t2] = Grant{RoomID: roomID, TeamName: team2, Role: engine.RoleTeam2}
	r.byRoom[roomID] = append(r.byRoom[roomID], t1, t2)
	return t1, t2, nil
}

func (r *Registry) Resolve(token string) (Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.grants[token]
	if !ok {
		return Grant{}, ErrNotFound
	}
	return g, nil
}

// RevokeRoom drops every token issued for roomID.
func (r *Registry) RevokeRoom(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	tokens := r.byRoom[roomID]
	for _, t := range tokens {
		delete(r.grants, t)
	}
	delete(r.byRoom, roomID)
	return len(tokens)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.grants)
}

func (r *Registry) newToken() (string, error) {
	for {
		buf := make([]byte, tokenBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		t := hex.EncodeToString(buf)

		r.mu.RLock()
		_, exists := r.grants[t]
		r.mu.RUnlock()
		if !exists {
			return t, nil
		}
	}
}
