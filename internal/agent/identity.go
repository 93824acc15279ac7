package agent

import (
	"fmt"

	"github.com/google/uuid"
)

// AID identifies an agent. It is stable for the process lifetime of the
// agent and doubles as the ledger key and message address.
type AID struct {
	ID   uuid.UUID
	Name string
}

// NewAID mints a fresh identity with a human-readable nickname.
func NewAID(name string) AID {
	return AID{ID: uuid.New(), Name: name}
}

// IsZero reports whether the identity is the zero value.
func (a AID) IsZero() bool {
	return a.ID == uuid.Nil && a.Name == ""
}

func (a AID) String() string {
	if a.ID == uuid.Nil {
		return a.Name
	}
	return fmt.Sprintf("%s#%s", a.Name, a.ID.String()[:8])
}
