package realtime

import (
	"sort"
	"sync"
)

// Member is a connection that can receive room messages.
// Deliver must not block; it reports false when the message was dropped.
type Member interface {
	ID() string
	Deliver(msg Message) bool
}

// Router fans messages out to named rooms. Membership lives only in memory;
// a publish reaches the members present at that moment and is never replayed.
type Router struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Member
	joined map[string]map[string]struct{}
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		rooms:  make(map[string]map[string]Member),
		joined: make(map[string]map[string]struct{}),
	}
}

// Join adds m to room. Joining twice is a no-op.
func (r *Router) Join(m Member, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]Member)
		r.rooms[room] = members
	}
	members[m.ID()] = m

	rooms, ok := r.joined[m.ID()]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[m.ID()] = rooms
	}
	rooms[room] = struct{}{}
}

// Leave removes the member from one room.
func (r *Router) Leave(memberID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(memberID, room)
}

// Remove drops the member from every room.
func (r *Router) Remove(memberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.joined[memberID] {
		r.leaveLocked(memberID, room)
	}
}

func (r *Router) leaveLocked(memberID, room string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, memberID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if rooms, ok := r.joined[memberID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, memberID)
		}
	}
}

// Publish delivers msg to the room's current members.
func (r *Router) Publish(room string, msg Message) (delivered, dropped int) {
	r.mu.RLock()
	members := make([]Member, 0, len(r.rooms[room]))
	for _, m := range r.rooms[room] {
		members = append(members, m)
	}
	r.mu.RUnlock()

	for _, m := range members {
		if m.Deliver(msg) {
			delivered++
		} else {
			dropped++
		}
	}
	return delivered, dropped
}

// Members lists member ids of room, sorted.
func (r *Router) Members(room string) []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Rooms lists the rooms a member belongs to, sorted.
func (r *Router) Rooms(memberID string) []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.joined[memberID]))
	for room := range r.joined[memberID] {
		out = append(out, room)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
