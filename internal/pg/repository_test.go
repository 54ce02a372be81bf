package pg

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"fieldsync/internal/dsl"
	"fieldsync/internal/repo"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T, variant string) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ents, err := dsl.LoadVariant(variant)
	require.NoError(t, err)
	store, err := NewStore(db, ents)
	require.NoError(t, err)
	return store, mock
}

const searchFieldSQL = `select "id", "version", "created_at", "updated_at", "name", "type", "active", "config"::text, "set_id" from "system"."custom_fields" where "name" = $1 order by "created_at", "id" limit 1`

func TestSearch(t *testing.T) {
	store, mock := newMockStore(t, dsl.VariantStandard)
	now := time.Now().UTC()

	mock.ExpectQuery(searchFieldSQL).
		WithArgs("nw_product_subtitle").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "created_at", "updated_at", "name", "type", "active", "config", "set_id"}).
			AddRow("f1", int64(2), now, now, "nw_product_subtitle", "text", true, `{"label":{"en-GB":"Subtitle"},"customFieldPosition":1}`, "s1"))

	rec, err := store.Repositories().Fields.Search(context.Background(), repo.Where("name", "nw_product_subtitle"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "f1", rec.ID)
	assert.Equal(t, int64(2), rec.Version)
	assert.Equal(t, "text", rec.String("type"))
	assert.Equal(t, true, rec.Data["active"])
	assert.Equal(t, "s1", rec.String("customFieldSetId"))
	assert.Equal(t, map[string]any{
		"label":               map[string]any{"en-GB": "Subtitle"},
		"customFieldPosition": float64(1),
	}, rec.Data["config"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchNoRows(t *testing.T) {
	store, mock := newMockStore(t, dsl.VariantStandard)
	mock.ExpectQuery(searchFieldSQL).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	rec, err := store.Repositories().Fields.Search(context.Background(), repo.Where("name", "missing"))
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert(t *testing.T) {
	store, mock := newMockStore(t, dsl.VariantStandard)

	mock.ExpectBegin()
	mock.ExpectExec(`insert into "system"."custom_fields" ("id", "active", "config", "set_id", "name", "type") values ($1, $2, $3::jsonb, $4, $5, $6)` +
		` on conflict ("id") do update set "active" = excluded."active", "config" = excluded."config", "set_id" = excluded."set_id", "name" = excluded."name", "type" = excluded."type", "version" = "system"."custom_fields"."version" + 1, "updated_at" = now()`).
		WithArgs("f1", true, `{"customFieldPosition":1}`, "s1", "nw_product_subtitle", "text").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Repositories().Fields.Upsert(context.Background(), []repo.Payload{{
		"id":               "f1",
		"name":             "nw_product_subtitle",
		"type":             "text",
		"active":           true,
		"config":           map[string]any{"customFieldPosition": 1},
		"customFieldSetId": "s1",
	}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUnmappedNeverReachesDB(t *testing.T) {
	store, mock := newMockStore(t, dsl.VariantStandard)

	err := store.Repositories().Fields.Upsert(context.Background(), []repo.Payload{{
		"id": "f1", "name": "x", "type": "text", "setId": "s1",
	}})
	field, ok := repo.IsUnmapped(err)
	require.True(t, ok)
	assert.Equal(t, "setId", field)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUndefinedColumnIsUnmapped(t *testing.T) {
	store, mock := newMockStore(t, dsl.VariantStandard)

	mock.ExpectQuery(`select "id" from "system"."custom_field_set_relations" where "set_id" = $1 order by "created_at", "id"`).
		WithArgs("s1").
		WillReturnError(&pgconn.PgError{Code: "42703", Message: `column "set_id" does not exist`})

	_, err := store.Repositories().Relations.SearchIDs(context.Background(), repo.Where("customFieldSetId", "s1"))
	field, ok := repo.IsUnmapped(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "customFieldSetId", field)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicate(t *testing.T) {
	store, mock := newMockStore(t, dsl.VariantLegacy)

	mock.ExpectBegin()
	mock.ExpectExec(`insert into "system"."custom_field_set_relations" ("id", "entity_name", "set_id") values ($1, $2, $3)`).
		WithArgs("r1", "product", "s1").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "custom_field_set_relations_pkey"})
	mock.ExpectRollback()

	err := store.Repositories().Relations.Create(context.Background(), []repo.Payload{{
		"id": "r1", "setId": "s1", "entityName": "product",
	}})
	assert.True(t, errors.Is(err, repo.ErrDuplicateID), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchIDsAndDelete(t *testing.T) {
	store, mock := newMockStore(t, dsl.VariantStandard)
	sets := store.Repositories().Sets

	mock.ExpectQuery(`select "id" from "system"."custom_field_sets" order by "created_at", "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))
	mock.ExpectExec(`delete from "system"."custom_field_sets" where "id" in ($1, $2)`).
		WithArgs("a", "b").
		WillReturnResult(sqlmock.NewResult(0, 2))

	ids, err := sets.SearchIDs(context.Background(), repo.Criteria{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	require.NoError(t, sets.Delete(context.Background(), ids))
	require.NoError(t, sets.Delete(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyDDL(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("create schema x;").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("alter table y;").WillReturnError(&pgconn.PgError{Code: "42710", ConstraintName: "y_fk"})
	mock.ExpectExec("alter table z;").WillReturnResult(sqlmock.NewResult(0, 0))

	err = ApplyDDL(context.Background(), db, map[string]string{
		"200_b": "alter table y;",
		"000_a": " create schema x; ",
		"100_":  "  ",
		"300_c": "alter table z;",
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectExec("create schema x;").WillReturnError(errors.New("boom"))
	err = ApplyDDL(context.Background(), db, map[string]string{"000_a": "create schema x;"}, zerolog.Nop())
	assert.ErrorContains(t, err, "DDL apply failed at 000_a")
}
