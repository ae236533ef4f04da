package core

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/mdobak/go-xerrors"

	"github.com/siahsang/notes/internal/utils/databaseutils"
)

const (
	maxSlugLength   = 240
	maxSlugSuffixes = 100
)

// CreateSlug derives the URL slug for a title or name.
func CreateSlug(title string) string {
	s := slug.Make(title)
	if len(s) > maxSlugLength {
		s = strings.Trim(s[:maxSlugLength], "-")
	}
	return s
}

// freeSlug returns base, or base with the first free "-2", "-3", ... suffix in
// table, falling back to a random suffix once those run out.
func (c *Core) freeSlug(ctx context.Context, table, base string) (string, error) {
	if base == "" {
		return randomSlugSuffix(), nil
	}

	query := fmt.Sprintf(`SELECT slug FROM %s WHERE slug = $1 OR slug LIKE $2`, table)
	taken, err := databaseutils.ExecuteQuery(c.sqlTemplate, ctx, query, func(rows *sql.Rows) (string, error) {
		var s string
		if err := rows.Scan(&s); err != nil {
			return "", xerrors.New(err)
		}
		return s, nil
	}, base, base+"-%")
	if err != nil {
		return "", xerrors.New(err)
	}

	used := make(map[string]struct{}, len(taken))
	for _, s := range taken {
		used[s] = struct{}{}
	}

	if _, ok := used[base]; !ok {
		return base, nil
	}
	for i := 2; i <= maxSlugSuffixes; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if _, ok := used[candidate]; !ok {
			return candidate, nil
		}
	}

	return base + "-" + randomSlugSuffix(), nil
}

func randomSlugSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
