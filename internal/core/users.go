package core

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/mdobak/go-xerrors"

	"github.com/siahsang/notes/internal/auth"
	"github.com/siahsang/notes/internal/utils/databaseutils"
	"github.com/siahsang/notes/models"
)

const selectUserSQL = `
	SELECT id, email, username, password, is_staff, is_superuser, capabilities
	FROM users
`

func scanUser(rows *sql.Rows) (*auth.User, error) {
	var (
		user         = &auth.User{}
		capabilities []string
	)
	if err := rows.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.Password,
		&user.IsStaff,
		&user.IsSuperuser,
		pq.Array(&capabilities),
	); err != nil {
		return nil, xerrors.New(err)
	}

	user.Capabilities = make([]models.Capability, 0, len(capabilities))
	for _, value := range capabilities {
		if capability, ok := models.ParseCapability(value); ok {
			user.Capabilities = append(user.Capabilities, capability)
		}
	}
	return user, nil
}

func (c *Core) CreateUser(ctx context.Context, user *auth.User) error {
	query := `
		INSERT INTO users (username, email, password, is_staff, is_superuser, capabilities)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
`
	capabilities := make([]string, len(user.Capabilities))
	for i, capability := range user.Capabilities {
		capabilities[i] = string(capability)
	}

	args := []any{user.Username, user.Email, user.Password, user.IsStaff, user.IsSuperuser, pq.Array(capabilities)}
	_, err := databaseutils.ExecuteSingleQuery(c.sqlTemplate, ctx, query, func(rows *sql.Rows) (*auth.User, error) {
		if err := rows.Scan(&user.ID); err != nil {
			return nil, xerrors.New(err)
		}
		return user, nil
	}, args...)

	if err != nil {
		constraint, _ := violatedConstraint(err, uniqueViolation)
		switch constraint {
		case "users_email_key":
			return xerrors.New(ErrDuplicateEmail)
		case "users_username_key":
			return xerrors.New(ErrDuplicateUsername)
		default:
			return xerrors.New(err)
		}
	}

	c.log.Info("User created", "user_id", user.ID, "username", user.Username)
	return nil
}

func (c *Core) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	user, err := databaseutils.ExecuteSingleQuery(c.sqlTemplate, ctx, selectUserSQL+" WHERE email = $1", scanUser, email)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return user, nil
}

func (c *Core) GetUserByID(ctx context.Context, id int64) (*auth.User, error) {
	user, err := databaseutils.ExecuteSingleQuery(c.sqlTemplate, ctx, selectUserSQL+" WHERE id = $1", scanUser, id)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return user, nil
}
