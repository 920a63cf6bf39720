// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

package typing

import (
	"slices"
	"sync"

	"github.com/sona-chat/sona/event"
)

// Presence tracks which peers are typing in one room. Names keep
// their arrival order so the UI's "X, Y are typing" line is stable.
type Presence struct {
	roomID      string
	localUserID string

	mu    sync.Mutex
	names []string
}

// NewPresence creates an empty presence set bound to a room.
func NewPresence(roomID, localUserID string) *Presence {
	return &Presence{roomID: roomID, localUserID: localUserID}
}

// ApplyStart records a peer starting to type. Signals from other
// rooms, or echoed back for the local user, are ignored. Returns true
// when the set changed.
func (p *Presence) ApplyStart(payload event.TypingPayload) bool {
	if payload.RoomID != p.roomID || payload.UserID == p.localUserID {
		return false
	}
	name := displayName(payload)

	p.mu.Lock()
	defer p.mu.Unlock()
	if slices.Contains(p.names, name) {
		return false
	}
	p.names = append(p.names, name)
	return true
}

// ApplyStop records a peer stopping. Absent names are a no-op.
// Returns true when the set changed.
func (p *Presence) ApplyStop(payload event.TypingPayload) bool {
	if payload.RoomID != p.roomID || payload.UserID == p.localUserID {
		return false
	}
	name := displayName(payload)

	p.mu.Lock()
	defer p.mu.Unlock()
	index := slices.Index(p.names, name)
	if index < 0 {
		return false
	}
	p.names = slices.Delete(p.names, index, index+1)
	return true
}

// Typists returns a copy of the names currently typing.
func (p *Presence) Typists() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.names)
}

// displayName falls back to the user id when the frame carries no
// display name.
func displayName(payload event.TypingPayload) string {
	if payload.DisplayName != "" {
		return payload.DisplayName
	}
	return payload.UserID
}
