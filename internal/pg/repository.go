package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"fieldsync/internal/dsl"
	"fieldsync/internal/repo"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

var undefinedColumnRe = regexp.MustCompile(`column "([^"]+)"`)

// Store — коллекции custom field в Postgres
type Store struct {
	db       *sql.DB
	entities map[string]*dsl.Entity
	Mappings map[string]*repo.Mapping
}

func NewStore(db *sql.DB, entities map[string]*dsl.Entity) (*Store, error) {
	mappings, err := repo.Mappings(entities)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, entities: entities, Mappings: mappings}, nil
}

// Migrate создаёт схему/таблицы/FK по DSL (add-only)
func (s *Store) Migrate(ctx context.Context, log zerolog.Logger) error {
	ddl, err := GenerateDDL(s.entities)
	if err != nil {
		return err
	}
	return ApplyDDL(ctx, s.db, ddl, log)
}

func (s *Store) Repositories() repo.Set {
	return repo.Set{
		Sets:      s.collection(repo.CollectionSets),
		Relations: s.collection(repo.CollectionRelations),
		Fields:    s.collection(repo.CollectionFields),
	}
}

func (s *Store) collection(name string) *collection {
	m := s.Mappings[name]
	return &collection{db: s.db, mapping: m, table: QualifiedTable(m.Entity())}
}

type collection struct {
	db      *sql.DB
	mapping *repo.Mapping
	table   string
}

var _ repo.Repository = (*collection)(nil)

func (c *collection) Collection() string { return c.mapping.Collection() }

// column возвращает колонку атрибута (id — системная)
func (c *collection) column(attr string) (dsl.Field, string) {
	if attr == repo.IDField {
		return dsl.Field{Name: repo.IDField, Type: "string"}, repo.IDField
	}
	f, _ := c.mapping.Field(attr)
	return f, f.Column()
}

func (c *collection) where(cr repo.Criteria, args []any) (string, []any) {
	if len(cr.Filters) == 0 {
		return "", args
	}
	parts := make([]string, 0, len(cr.Filters))
	for _, f := range cr.Filters {
		_, col := c.column(f.Field)
		args = append(args, f.Value)
		parts = append(parts, fmt.Sprintf("%s = $%d", sqlIdent(col), len(args)))
	}
	return " where " + strings.Join(parts, " and "), args
}

func (c *collection) Search(ctx context.Context, cr repo.Criteria) (*repo.Record, error) {
	if err := c.mapping.CheckCriteria(cr); err != nil {
		return nil, err
	}
	fields := c.mapping.Entity().Fields
	cols := []string{`"id"`, `"version"`, `"created_at"`, `"updated_at"`}
	for _, f := range fields {
		col := sqlIdent(f.Column())
		if f.Type == "json" {
			col += "::text"
		}
		cols = append(cols, col)
	}
	where, args := c.where(cr, nil)
	q := fmt.Sprintf(`select %s from %s%s order by "created_at", "id" limit 1`, strings.Join(cols, ", "), c.table, where)

	var (
		rec  repo.Record
		vals = make([]any, len(fields))
	)
	dest := []any{&rec.ID, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt}
	for i, f := range fields {
		switch f.Type {
		case "int":
			vals[i] = new(sql.NullInt64)
		case "bool":
			vals[i] = new(sql.NullBool)
		default:
			vals[i] = new(sql.NullString)
		}
		dest = append(dest, vals[i])
	}

	err := c.db.QueryRowContext(ctx, q, args...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, c.translate(err, "search")
	}

	rec.Data = make(map[string]any, len(fields))
	for i, f := range fields {
		switch v := vals[i].(type) {
		case *sql.NullInt64:
			if v.Valid {
				rec.Data[f.Name] = v.Int64
			}
		case *sql.NullBool:
			if v.Valid {
				rec.Data[f.Name] = v.Bool
			}
		case *sql.NullString:
			if !v.Valid {
				continue
			}
			if f.Type != "json" {
				rec.Data[f.Name] = v.String
				continue
			}
			var doc any
			if err := json.Unmarshal([]byte(v.String), &doc); err != nil {
				return nil, errors.Wrapf(err, "decode %s.%s", c.Collection(), f.Name)
			}
			rec.Data[f.Name] = doc
		}
	}
	return &rec, nil
}

func (c *collection) SearchIDs(ctx context.Context, cr repo.Criteria) ([]string, error) {
	if err := c.mapping.CheckCriteria(cr); err != nil {
		return nil, err
	}
	where, args := c.where(cr, nil)
	q := fmt.Sprintf(`select "id" from %s%s order by "created_at", "id"`, c.table, where)

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, c.translate(err, "search ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, c.translate(err, "scan id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, c.translate(err, "search ids")
	}
	return ids, nil
}

func (c *collection) Upsert(ctx context.Context, payloads []repo.Payload) error {
	return c.write(ctx, payloads, true)
}

func (c *collection) Create(ctx context.Context, payloads []repo.Payload) error {
	return c.write(ctx, payloads, false)
}

// insertSQL строит insert (или upsert) для одного payload
func (c *collection) insertSQL(p repo.Payload, upsert bool) (string, []any, error) {
	keys := p.Keys()
	cols := []string{`"id"`}
	marks := []string{"$1"}
	args := []any{p.ID()}
	sets := make([]string, 0, len(keys)+2)

	for _, k := range keys {
		f, col := c.column(k)
		v := p[k]
		mark := fmt.Sprintf("$%d", len(args)+1)
		if f.Type == "json" && v != nil {
			b, err := json.Marshal(v)
			if err != nil {
				return "", nil, errors.Wrapf(err, "encode %s.%s", c.Collection(), k)
			}
			v = string(b)
			mark += "::jsonb"
		}
		args = append(args, v)
		cols = append(cols, sqlIdent(col))
		marks = append(marks, mark)
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", sqlIdent(col), sqlIdent(col)))
	}

	q := fmt.Sprintf("insert into %s (%s) values (%s)", c.table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if upsert {
		sets = append(sets, fmt.Sprintf(`"version" = %s."version" + 1`, c.table), `"updated_at" = now()`)
		q += ` on conflict ("id") do update set ` + strings.Join(sets, ", ")
	}
	return q, args, nil
}

func (c *collection) write(ctx context.Context, payloads []repo.Payload, upsert bool) error {
	// required проверяет сама БД (not null), тут только маппинг и id
	if err := c.mapping.CheckPayloads(payloads, func(string) bool { return true }); err != nil {
		return err
	}
	if len(payloads) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "begin %s write", c.Collection())
	}
	for _, p := range payloads {
		q, args, err := c.insertSQL(p, upsert)
		if err == nil {
			_, err = tx.ExecContext(ctx, q, args...)
		}
		if err != nil {
			_ = tx.Rollback()
			return c.translate(err, "write "+p.ID())
		}
	}
	if err := tx.Commit(); err != nil {
		return c.translate(err, "commit")
	}
	return nil
}

func (c *collection) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	q := fmt.Sprintf(`delete from %s where "id" in (%s)`, c.table, strings.Join(marks, ", "))
	if _, err := c.db.ExecContext(ctx, q, args...); err != nil {
		return c.translate(err, "delete")
	}
	return nil
}

// translate: undefined_column (42703) → UnmappedFieldError, конфликт pkey → ErrDuplicateID
func (c *collection) translate(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUndefinedColumn:
			col := pgErr.ColumnName
			if m := undefinedColumnRe.FindStringSubmatch(pgErr.Message); m != nil {
				col = m[1]
			}
			attr, ok := c.mapping.AttributeForColumn(col)
			if !ok {
				attr = col
			}
			return &repo.UnmappedFieldError{Collection: c.Collection(), Field: attr}
		case codeUniqueViolation:
			if strings.HasSuffix(pgErr.ConstraintName, "_pkey") {
				return errors.Wrapf(repo.ErrDuplicateID, "%s %s", c.Collection(), op)
			}
		}
	}
	return errors.Wrapf(err, "%s %s", c.Collection(), op)
}

