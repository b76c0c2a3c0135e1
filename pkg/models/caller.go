package models

import "github.com/google/uuid"

// Caller is the authenticated principal acting on a request.
type Caller struct {
	ID   uuid.UUID
	Role Role
}

func (c Caller) IsAdmin() bool  { return c.Role == RoleAdmin }
func (c Caller) IsClient() bool { return c.Role == RoleClient }
func (c Caller) IsLawyer() bool { return c.Role == RoleLawyer }

// SystemActor is recorded in history rows written by webhooks and polling.
var SystemActor = uuid.Nil
