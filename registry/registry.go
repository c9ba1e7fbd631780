package registry

import "strings"

// Membership confirms live room membership at the instant of a relay.
// The registry's own entries can go stale if a connection left a room
// out of band, so relay validation always double-checks against the
// channel's broadcast group itself.
type Membership interface {
	Contains(roomID string, memberID string) bool
}

// Registry maps connection ids to the single room each one currently
// occupies on a channel. It is owned by the channel's service
// goroutine and is not safe for concurrent use.
type Registry struct {
	roomByConn map[string]string
}

func New() *Registry {
	return &Registry{roomByConn: make(map[string]string)}
}

// Sanitize trims the caller-supplied room identifier. Empty or
// whitespace-only input yields "" and the operation using it becomes
// a no-op.
func Sanitize(roomID string) string {
	return strings.TrimSpace(roomID)
}

// Join records the connection's membership. If the connection already
// held a different room, that room is returned so the caller can
// announce the departure before announcing the arrival. Re-joining
// the current room returns ("", false).
func (r *Registry) Join(connID string, roomID string) (previous string, moved bool) {
	prev, ok := r.roomByConn[connID]
	if ok && prev == roomID {
		return "", false
	}

	r.roomByConn[connID] = roomID
	if ok {
		return prev, true
	}
	return "", false
}

// Leave removes the connection's entry and returns the room it pointed
// to. The second return is false if there was no entry, which makes
// the disconnect path idempotent when it races an explicit leave.
func (r *Registry) Leave(connID string) (string, bool) {
	roomID, ok := r.roomByConn[connID]
	if !ok {
		return "", false
	}
	delete(r.roomByConn, connID)
	return roomID, true
}

// RoomOf returns the connection's current room, if any.
func (r *Registry) RoomOf(connID string) (string, bool) {
	roomID, ok := r.roomByConn[connID]
	return roomID, ok
}

// SharedRoom returns the room both connections occupy, or "" if they
// do not share one. Both the registry entries and the live membership
// of the broadcast group must agree; a message may be relayed from a
// to b only when both checks pass at the instant of relay.
func (r *Registry) SharedRoom(a string, b string, live Membership) string {
	roomA, ok := r.roomByConn[a]
	if !ok {
		return ""
	}

	roomB, ok := r.roomByConn[b]
	if !ok || roomB != roomA {
		return ""
	}

	if live != nil {
		if !live.Contains(roomA, a) || !live.Contains(roomA, b) {
			return ""
		}
	}

	return roomA
}
