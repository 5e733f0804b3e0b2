package channels

import (
	"sort"
	"sync"
)

// UserManager handles user authorization. With no configured users every
// user is authorized.
type UserManager struct {
	mu         sync.RWMutex
	allowedIDs map[int64]bool
}

// NewUserManager creates a new user manager
func NewUserManager(allowedUsers []int64) *UserManager {
	allowedIDs := make(map[int64]bool)
	for _, id := range allowedUsers {
		if id != 0 {
			allowedIDs[id] = true
		}
	}
	return &UserManager{allowedIDs: allowedIDs}
}

// Restricted reports whether an allowlist is configured.
func (m *UserManager) Restricted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.allowedIDs) > 0
}

// Authorize checks if a user is authorized
func (m *UserManager) Authorize(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.allowedIDs) == 0 {
		return true
	}
	return m.allowedIDs[userID]
}

// AddUser adds a user to allowlist
func (m *UserManager) AddUser(userID int64) {
	m.mu.Lock()
	m.allowedIDs[userID] = true
	m.mu.Unlock()
}

// RemoveUser removes a user from allowlist
func (m *UserManager) RemoveUser(userID int64) {
	m.mu.Lock()
	delete(m.allowedIDs, userID)
	m.mu.Unlock()
}

// GetAllowedUsers returns the allowlist in ascending order
func (m *UserManager) GetAllowedUsers() []int64 {
	m.mu.RLock()
	users := make([]int64, 0, len(m.allowedIDs))
	for id := range m.allowedIDs {
		users = append(users, id)
	}
	m.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}
