package rooms

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

// Member is one connection as seen by a broadcast group.
type Member interface {
	ID() string
	Send(data []byte)
}

// Set tracks room membership for one channel. Rooms are created on
// first join and pruned when the last member leaves. A Set is owned
// by a single service goroutine and is not safe for concurrent use.
type Set struct {
	rooms    map[string]map[string]Member
	byMember map[string]map[string]bool
}

func NewSet() *Set {
	return &Set{
		rooms:    make(map[string]map[string]Member),
		byMember: make(map[string]map[string]bool),
	}
}

// Join adds the member to the room. Returns false if it was already a
// member, so callers can keep join idempotent.
func (s *Set) Join(roomID string, m Member) bool {
	members, ok := s.rooms[roomID]
	if !ok {
		members = make(map[string]Member)
		s.rooms[roomID] = members
	}

	if _, ok := members[m.ID()]; ok {
		return false
	}
	members[m.ID()] = m

	joined, ok := s.byMember[m.ID()]
	if !ok {
		joined = make(map[string]bool)
		s.byMember[m.ID()] = joined
	}
	joined[roomID] = true

	return true
}

// Leave removes the member from the room. Returns false if it was not
// a member.
func (s *Set) Leave(roomID string, memberID string) bool {
	members, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := members[memberID]; !ok {
		return false
	}

	delete(members, memberID)
	if len(members) == 0 {
		delete(s.rooms, roomID)
	}

	if joined, ok := s.byMember[memberID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(s.byMember, memberID)
		}
	}

	return true
}

// LeaveAll removes the member from every room and returns the rooms it
// was in, so the caller can announce each departure.
func (s *Set) LeaveAll(memberID string) []string {
	joined := s.byMember[memberID]
	left := make([]string, 0, len(joined))
	for roomID := range joined {
		left = append(left, roomID)
	}

	for _, roomID := range left {
		s.Leave(roomID, memberID)
	}

	return left
}

func (s *Set) Contains(roomID string, memberID string) bool {
	members, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	_, ok = members[memberID]
	return ok
}

func (s *Set) MemberIDs(roomID string) []string {
	members := s.rooms[roomID]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

func (s *Set) RoomsOf(memberID string) []string {
	joined := s.byMember[memberID]
	ids := make([]string, 0, len(joined))
	for roomID := range joined {
		ids = append(ids, roomID)
	}
	return ids
}

func (s *Set) Member(roomID string, memberID string) (Member, bool) {
	members, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	m, ok := members[memberID]
	return m, ok
}

// Broadcast sends the message to every member of the room except the
// one named by exceptID. Marshalling failures drop the message with a
// log line.
func (s *Set) Broadcast(roomID string, exceptID string, message interface{}) {
	members, ok := s.rooms[roomID]
	if !ok {
		return
	}

	bytes, err := json.Marshal(message)
	if err != nil {
		log.WithError(err).Error("Error marshalling message")
		return
	}

	for id, m := range members {
		if id == exceptID {
			continue
		}
		m.Send(bytes)
	}
}

// SendTo delivers the message to one member of the room, if present.
func (s *Set) SendTo(roomID string, memberID string, message interface{}) {
	m, ok := s.Member(roomID, memberID)
	if !ok {
		return
	}

	bytes, err := json.Marshal(message)
	if err != nil {
		log.WithError(err).Error("Error marshalling message")
		return
	}

	m.Send(bytes)
}
