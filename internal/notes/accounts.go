package notes

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mdobak/go-xerrors"

	"github.com/siahsang/notes/internal/auth"
	"github.com/siahsang/notes/internal/core"
	"github.com/siahsang/notes/internal/notify"
	"github.com/siahsang/notes/internal/validator"
	"github.com/siahsang/notes/models"
)

const (
	minPasswordLength    = 8
	maxPasswordLength    = 72
	maxUsernameLength    = 150
	maxContactMessage    = 5000
	contactFailureNotice = "Your message could not be delivered right now. Please try again later."
)

var usernameRX = regexp.MustCompile(`^[\w.@+-]+$`)

type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ContactInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// ContactResult reports whether the message reached the administrator. A failed
// delivery is not an error for the sender of the form.
type ContactResult struct {
	Delivered bool   `json:"delivered"`
	Warning   string `json:"warning,omitempty"`
}

func ValidateRegistration(v *validator.Validator, r Registration) {
	v.CheckNotBlank(r.Username, "username", "must be provided")
	v.CheckMaxLength(r.Username, maxUsernameLength, "username", "must not be more than 150 characters long")
	v.Check(r.Username == "" || v.IsMatch(r.Username, usernameRX), "username", "may contain only letters, digits and @.+-_")
	v.CheckNotBlank(r.Email, "email", "must be provided")
	v.CheckEmail(r.Email, "email", "must be a valid email address")
	v.Check(len(r.Password) >= minPasswordLength, "password", "must be at least 8 bytes long")
	v.Check(len(r.Password) <= maxPasswordLength, "password", "must not be more than 72 bytes long")
}

// RegisterUser creates a regular user and tells the administrator about it.
func (s *Service) RegisterUser(ctx context.Context, r Registration) (*auth.User, error) {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)

	v := validator.New()
	if ValidateRegistration(v, r); !v.IsValid() {
		return nil, invalid(v)
	}

	user := &auth.User{Username: r.Username, Email: r.Email}
	if err := user.SetPassword(r.Password); err != nil {
		return nil, err
	}

	err := s.catalog.CreateUser(ctx, user)
	switch {
	case errors.Is(err, core.ErrDuplicateEmail):
		return nil, invalidField("email", "a user with this email address already exists")
	case errors.Is(err, core.ErrDuplicateUsername):
		return nil, invalidField("username", "a user with this username already exists")
	case err != nil:
		return nil, err
	}

	origin := originFrom(ctx)
	s.notifier.Dispatch(ctx, notify.Event{
		Subject:    "New user registered",
		Body:       fmt.Sprintf("Username: %s\nEmail: %s", user.Username, user.Email),
		RemoteAddr: origin.RemoteAddr,
		UserAgent:  origin.UserAgent,
	})
	return user, nil
}

// Authenticate checks the credentials and returns the matching user.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*auth.User, error) {
	user, err := s.catalog.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, core.NoRecordFound) {
		return nil, xerrors.New(ErrInvalidCredentials)
	}
	if err != nil {
		return nil, err
	}

	match, err := user.IsPasswordMatch(password)
	if err != nil {
		return nil, err
	}
	if !match {
		return nil, xerrors.New(ErrInvalidCredentials)
	}
	return user, nil
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.catalog.GetUserByEmail(ctx, email)
}

// Contact forwards the contact form to the administrator and waits for delivery.
// Authenticated users are identified by their account rather than the form.
func (s *Service) Contact(ctx context.Context, actor models.Actor, input ContactInput) (*ContactResult, error) {
	if !actor.IsAnonymous() {
		input.Name = actor.Username
		input.Email = actor.Email
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	input.Message = strings.TrimSpace(input.Message)

	v := validator.New()
	v.CheckNotBlank(input.Name, "name", "must be provided")
	v.CheckMaxLength(input.Name, maxAuthorNameLength, "name", "must not be more than 100 characters long")
	v.CheckNotBlank(input.Email, "email", "must be provided")
	v.CheckEmail(input.Email, "email", "must be a valid email address")
	v.CheckNotBlank(input.Message, "message", "must be provided")
	v.CheckMaxLength(input.Message, maxContactMessage, "message", "must not be more than 5000 characters long")
	if !v.IsValid() {
		return nil, invalid(v)
	}

	origin := originFrom(ctx)
	err := s.notifier.Notify(ctx, notify.Event{
		Subject:    "Message from contact form",
		Body:       fmt.Sprintf("Author: %s\nEmail: %s\nText: %s", input.Name, input.Email, input.Message),
		RemoteAddr: origin.RemoteAddr,
		UserAgent:  origin.UserAgent,
	})
	if err != nil {
		s.log.WarnContext(ctx, "Contact message not delivered", "email", input.Email, "error", xerrors.Sprint(err))
		return &ContactResult{Warning: contactFailureNotice}, nil
	}
	return &ContactResult{Delivered: true}, nil
}
