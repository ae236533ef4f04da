package models

import "slices"

// Capability is a permission granted to a user independently of its role.
type Capability string

const (
	CapabilityAuthor   Capability = "can-author"
	CapabilityModerate Capability = "can-moderate"
)

func ParseCapability(value string) (Capability, bool) {
	switch c := Capability(value); c {
	case CapabilityAuthor, CapabilityModerate:
		return c, true
	default:
		return "", false
	}
}

// Actor is the identity behind a request. The zero value is the anonymous actor.
type Actor struct {
	UserID       int64
	Username     string
	Email        string
	IsStaff      bool
	IsSuperuser  bool
	Capabilities []Capability
}

func Anonymous() Actor {
	return Actor{}
}

func (a Actor) IsAnonymous() bool {
	return a.UserID == 0
}

// Has reports whether the actor holds capability c. Superusers hold every capability.
func (a Actor) Has(c Capability) bool {
	if a.IsAnonymous() {
		return false
	}
	return a.IsSuperuser || slices.Contains(a.Capabilities, c)
}

func (a Actor) IsModerator() bool {
	return !a.IsAnonymous() && (a.IsSuperuser || a.IsStaff || a.Has(CapabilityModerate))
}

func (a Actor) CanAuthor() bool {
	return a.Has(CapabilityAuthor)
}
