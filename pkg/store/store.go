package store

import (
	"time"

	"carbonq/pkg/domain"
)

// Store defines persistence for users and the append-only query log.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// query log. Rows are append-only: nothing updates or deletes them.
	AppendQuery(domain.QueryRecord) error
	ListQueriesByUser(userID string) ([]domain.QueryRecord, error)
	ListQueriesSince(userID string, since time.Time) ([]domain.QueryRecord, error)
	ListRecentQueries(userID string, limit int) ([]domain.QueryRecord, error)
}

// SessionStore issues and validates access tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
