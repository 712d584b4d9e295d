// Package player tracks connected players' identity and last-known
// transform in a single shared table.
package player

import (
	"fmt"
	"sort"
	"sync"
)

// Player is one live connection's identity and pose. Values handed out by
// the registry are copies; only the registry mutates the stored entry.
type Player struct {
	ID     int
	Conn   string // owning connection's session id
	Name   string
	X, Y, Z float64
	RX, RY  float64
}

// StaleReferenceError marks an operation on a player id that is not
// registered. A late message from a just-disconnected client must not
// resurrect state, so callers treat it as a no-op.
type StaleReferenceError struct {
	PlayerID int
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf("player %d is not registered", e.PlayerID)
}

// Registry is the shared live-player table, guarded by one short-duration
// lock per operation.
type Registry struct {
	mu   sync.Mutex
	next int
	free []int
	byID map[int]*Player
}

func NewRegistry() *Registry {
	return &Registry{next: 1, byID: make(map[int]*Player)}
}

// Register allocates an id and starts the player's existence. Reclaimed ids
// are reused before the counter grows; an id is never live twice at once.
// An empty name defaults to guest<id>.
func (r *Registry) Register(connID, name string) Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	var id int
	if n := len(r.free); n > 0 {
		id = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		id = r.next
		r.next++
	}
	if name == "" {
		name = fmt.Sprintf("guest%d", id)
	}
	p := &Player{ID: id, Conn: connID, Name: name}
	r.byID[id] = p
	return *p
}

// UpdateTransform overwrites the player's pose and returns the stored copy
// for broadcast.
func (r *Registry) UpdateTransform(id int, x, y, z, rx, ry float64) (Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return Player{}, &StaleReferenceError{PlayerID: id}
	}
	p.X, p.Y, p.Z, p.RX, p.RY = x, y, z, rx, ry
	return *p, nil
}

// Rename sets the display name and returns the previous one.
func (r *Registry) Rename(id int, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return "", &StaleReferenceError{PlayerID: id}
	}
	old := p.Name
	p.Name = name
	return old, nil
}

// Unregister removes the entry and returns it so a player-left notice can
// be broadcast. The freed id becomes eligible for reuse.
func (r *Registry) Unregister(id int) (Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return Player{}, &StaleReferenceError{PlayerID: id}
	}
	delete(r.byID, id)
	r.free = append(r.free, id)
	return *p, nil
}

// Get returns a copy of the player with the given id.
func (r *Registry) Get(id int) (Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Lookup finds a player by display name.
func (r *Registry) Lookup(name string) (Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byID {
		if p.Name == name {
			return *p, true
		}
	}
	return Player{}, false
}

// List returns a point-in-time copy of all live players in id order.
func (r *Registry) List() []Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Player, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of live players.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
