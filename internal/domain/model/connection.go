// Package model defines the core domain entities used throughout the application.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Connection is a user's link to one external data provider. Exactly one
// owner per connection; credentials are referenced by SecretID, never embedded.
type Connection struct {
	ID          string
	OwnerID     string
	Category    ConnectionCategory
	DisplayName string
	Provider    string
	Status      ConnectionStatus
	SecretID    string
	Cadence     Cadence
	DataTypes   []string
	LastSyncAt  time.Time
	NextSyncAt  time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewConnectionID returns a fresh connection identifier.
func NewConnectionID() string {
	return "conn_" + uuid.NewString()
}

// Syncable reports whether the connection is in a state where provider
// synchronization is allowed.
func (c *Connection) Syncable() bool {
	return c.Status == ConnectionStatusConnected || c.Status == ConnectionStatusError
}

// CanTransitionTo enforces the connection lifecycle: pending is entered only
// at creation, disconnected is terminal, and error/connected may flip between
// each other as syncs fail and recover.
func (c *Connection) CanTransitionTo(next ConnectionStatus) bool {
	if next == ConnectionStatusPending {
		return false
	}
	switch c.Status {
	case ConnectionStatusPending:
		return next == ConnectionStatusConnected || next == ConnectionStatusError || next == ConnectionStatusDisconnected
	case ConnectionStatusConnected:
		return next == ConnectionStatusError || next == ConnectionStatusDisconnected
	case ConnectionStatusError:
		return next == ConnectionStatusConnected || next == ConnectionStatusDisconnected
	case ConnectionStatusDisconnected:
		return false
	}
	return false
}
