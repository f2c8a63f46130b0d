// Package directory resolves user ids to accounts. The conversation core
// never owns user records; it only asks whether an id exists and how to
// render it.
package directory

import (
	"sync"
)

// StaticDirectory is an in-memory user directory, seeded at startup or
// mutated by tests. Safe for concurrent use.
type StaticDirectory struct {
	mu    sync.RWMutex
	users map[string]string
}

func NewStaticDirectory(users map[string]string) *StaticDirectory {
	if users == nil {
		users = map[string]string{}
	}
	return &StaticDirectory{users: users}
}

func (d *StaticDirectory) AddUser(userID, displayName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[userID] = displayName
}

func (d *StaticDirectory) DisplayName(userID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.users[userID]
	return name, ok
}

func (d *StaticDirectory) IsValidUser(userID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[userID]
	return ok
}
