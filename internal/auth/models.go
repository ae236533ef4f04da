package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/siahsang/notes/models"
)

type User struct {
	ID                int64               `json:"-"`
	Email             string              `json:"email"`
	Token             string              `json:"token,omitempty"`
	Username          string              `json:"username"`
	Password          []byte              `json:"-"`
	PlaintextPassword string              `json:"-"`
	IsStaff           bool                `json:"isStaff"`
	IsSuperuser       bool                `json:"isSuperuser"`
	Capabilities      []models.Capability `json:"capabilities"`
}

// Actor is the identity the policy layer sees for this user.
func (user *User) Actor() models.Actor {
	if user == nil {
		return models.Anonymous()
	}
	return models.Actor{
		UserID:       user.ID,
		Username:     user.Username,
		Email:        user.Email,
		IsStaff:      user.IsStaff,
		IsSuperuser:  user.IsSuperuser,
		Capabilities: user.Capabilities,
	}
}

type UserClaim struct {
	Username string `json:"username"`
	Email    string `json:"email"`

	jwt.RegisteredClaims
}
