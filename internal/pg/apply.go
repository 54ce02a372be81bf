package pg

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// Коды ошибок Postgres, которые мы разбираем
const (
	codeDuplicateObject = "42710"
	codeUndefinedColumn = "42703"
	codeUniqueViolation = "23505"
)

// SortedKeys — порядок применения шагов DDL
func SortedKeys(ddl map[string]string) []string {
	keys := make([]string, 0, len(ddl))
	for k := range ddl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ApplyDDL выполняет map[key]sql в порядке ключей. Ожидается idempotent DDL (create ... if not exists).
func ApplyDDL(ctx context.Context, db *sql.DB, ddl map[string]string, log zerolog.Logger) error {
	for _, k := range SortedKeys(ddl) {
		sqlText := strings.TrimSpace(ddl[k])
		if sqlText == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			// повторный add constraint → duplicate_object (42710), это не ошибка
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == codeDuplicateObject {
				log.Debug().Str("step", k).Str("constraint", pgErr.ConstraintName).Msg("DDL skipped (already exists)")
				continue
			}
			return errors.Wrapf(err, "DDL apply failed at %s", k)
		}
		log.Debug().Str("step", k).Msg("DDL applied")
	}
	return nil
}
