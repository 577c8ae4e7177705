package profile

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient   Role = "patient"
	RoleTherapist Role = "therapist"
	RoleAdmin     Role = "admin"
)

// Profile is external-collaborator data: slots and payments reference it
// by id, but account lifecycle (auth, signup) lives outside this core.
type Profile struct {
	ID        uuid.UUID
	FullName  string
	Email     *string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}
