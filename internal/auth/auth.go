package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/juju/clock"
	"github.com/mdobak/go-xerrors"
	"golang.org/x/crypto/bcrypt"

	"github.com/siahsang/notes/internal/web"
	"github.com/siahsang/notes/models"
)

type contextKey string

const UserCtxKey = contextKey("user_data")

var (
	NotAuthenticatedUser = xerrors.Message("Not authenticated user")
	ErrInvalidToken      = xerrors.Message("Invalid token")
)

const bcryptCost = 12

type Auth struct {
	secret []byte
	clock  clock.Clock
}

func New(secret string, clk clock.Clock) *Auth {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Auth{secret: []byte(secret), clock: clk}
}

func (user *User) SetPassword(plainTextPassword string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(plainTextPassword), bcryptCost)

	if err != nil {
		return xerrors.New(err)
	}

	user.Password = hashedPassword
	return nil
}

func (user *User) IsPasswordMatch(plainTextPassword string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(user.Password, []byte(plainTextPassword))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, xerrors.New(err)
	}

	return true, nil
}

func (auth *Auth) GenerateToken(user *User, duration time.Duration) (string, error) {
	now := auth.clock.Now()
	claim := UserClaim{
		Username: user.Username,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claim)
	signedString, err := token.SignedString(auth.secret)
	if err != nil {
		return "", xerrors.New(err)
	}
	return signedString, nil
}

func (auth *Auth) Authenticate(tokenString string) (*UserClaim, error) {
	parsedToken, err := jwt.ParseWithClaims(tokenString, &UserClaim{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, xerrors.New("unexpected signing method")
		}
		return auth.secret, nil
	}, jwt.WithTimeFunc(auth.clock.Now))

	if err != nil {
		return nil, xerrors.Newf("%w: %v", ErrInvalidToken, err)
	}

	if !parsedToken.Valid {
		return nil, xerrors.New(ErrInvalidToken)
	}

	if claim, ok := parsedToken.Claims.(*UserClaim); ok {
		return claim, nil
	} else {
		return nil, xerrors.New("could not parse claims")
	}
}

func (auth *Auth) GetAuthenticatedUser(r *http.Request) (*User, error) {
	user, ok := web.GetValueFromContext[*User](r, UserCtxKey)
	if !ok {
		return nil, NotAuthenticatedUser
	}

	return user, nil
}

func (auth *Auth) SetAuthenticatedUser(r *http.Request, user *User) *http.Request {
	return web.AddValueToContext(r, UserCtxKey, user)
}

func (auth *Auth) IsUserAuthenticated(r *http.Request) bool {
	_, err := auth.GetAuthenticatedUser(r)
	return err == nil
}

// ActorFrom returns the request's actor, anonymous when nobody signed in.
func (auth *Auth) ActorFrom(r *http.Request) models.Actor {
	user, err := auth.GetAuthenticatedUser(r)
	if err != nil {
		return models.Anonymous()
	}
	return user.Actor()
}
