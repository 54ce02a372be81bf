// Package installer — идемпотентный установщик custom field: наборы, поля и
// связи набор→сущность создаются/обновляются по имени и удаляются по запросу.
package installer

import (
	"context"
	"encoding/hex"
	"io"
	"math/rand"
	"sync"
	"time"

	"fieldsync/internal/catalog"
	"fieldsync/internal/logging"
	"fieldsync/internal/repo"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

type Installer struct {
	repos   repo.Set
	schemas []Schema
	log     zerolog.Logger
	metrics *Metrics
	newID   func() string

	mu      sync.Mutex // ulid.Monotonic не потокобезопасен
	entropy io.Reader
}

type Option func(*Installer)

func WithLogger(l zerolog.Logger) Option { return func(in *Installer) { in.log = l } }

func WithMetrics(m *Metrics) Option { return func(in *Installer) { in.metrics = m } }

// WithIDGenerator подменяет генератор суррогатных id (тесты)
func WithIDGenerator(fn func() string) Option { return func(in *Installer) { in.newID = fn } }

// WithSchemas задаёт порядок попыток схем внешнего ключа
func WithSchemas(s ...Schema) Option {
	return func(in *Installer) {
		if len(s) > 0 {
			in.schemas = append([]Schema(nil), s...)
		}
	}
}

func New(repos repo.Set, opts ...Option) *Installer {
	in := &Installer{
		repos:   repos,
		schemas: Schemas,
		log:     logging.Package("installer"),
		newID:   NewID,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

// NewID — 32 hex символа (UUIDv4 без дефисов)
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

func (in *Installer) runID() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), in.entropy).String()
}

// Install: для каждого набора каталога по порядку — набор, его поля, связь с сущностью.
func (in *Installer) Install(ctx context.Context, cat catalog.Catalog) (*Report, error) {
	r := in.begin(ctx, OpInstall)
	for _, def := range cat.Sets() {
		setID, err := r.ensureSet(def)
		if err != nil {
			return r.finish(err)
		}
		// поля по одному, не inline в наборе
		for _, f := range def.Fields {
			if err := r.ensureField(setID, f); err != nil {
				return r.finish(err)
			}
		}
		if err := r.ensureRelation(setID, def.Name, def.Entity); err != nil {
			return r.finish(err)
		}
	}
	return r.finish(nil)
}

// AddRelations восстанавливает связи для уже установленных наборов; остальные пропускаются.
func (in *Installer) AddRelations(ctx context.Context, cat catalog.Catalog) (*Report, error) {
	r := in.begin(ctx, OpAddRelations)
	for _, def := range cat.Sets() {
		setID, err := r.setIDByName(def.Name)
		if err != nil {
			return r.finish(err)
		}
		if setID == "" {
			r.skip(def.Name)
			continue
		}
		if err := r.ensureRelation(setID, def.Name, def.Entity); err != nil {
			return r.finish(err)
		}
	}
	return r.finish(nil)
}

// Uninstall: связи → поля (по имени, затем оставшиеся в наборе) → набор. Отсутствующий набор пропускается.
func (in *Installer) Uninstall(ctx context.Context, cat catalog.Catalog) (*Report, error) {
	r := in.begin(ctx, OpUninstall)
	for _, def := range cat.Sets() {
		setID, err := r.setIDByName(def.Name)
		if err != nil {
			return r.finish(err)
		}
		if setID == "" {
			r.skip(def.Name)
			continue
		}
		if err := r.deleteRelations(setID, def.Name); err != nil {
			return r.finish(err)
		}
		for _, f := range def.Fields {
			if err := r.deleteFieldByName(f.Name); err != nil {
				return r.finish(err)
			}
		}
		// поля, выпавшие из каталога, тоже ссылаются на набор
		if err := r.deleteLeftoverFields(setID, def.Name); err != nil {
			return r.finish(err)
		}
		if err := in.repos.Sets.Delete(ctx, []string{setID}); err != nil {
			return r.finish(errors.Wrapf(err, "delete set %s", def.Name))
		}
		r.report.SetsDeleted++
		in.metrics.delete(repo.CollectionSets, 1)
		r.log.Debug().Str(logging.SET, def.Name).Str("id", setID).Msg("set deleted")
	}
	return r.finish(nil)
}

// ===== прогон =====

type run struct {
	in     *Installer
	ctx    context.Context
	log    zerolog.Logger
	report *Report
	start  time.Time
	// коллекция → схема, сработавшая в этом прогоне
	active map[string]Schema
}

func (in *Installer) begin(ctx context.Context, op string) *run {
	id := in.runID()
	now := time.Now()
	return &run{
		in:  in,
		ctx: ctx,
		log: in.log.With().Str(logging.RUN, id).Str(logging.OPERATION, op).Logger(),
		report: &Report{
			RunID:     id,
			Operation: op,
			StartedAt: now.UTC(),
			Schemas:   map[string]string{},
		},
		start:  now,
		active: map[string]Schema{},
	}
}

func (r *run) finish(err error) (*Report, error) {
	r.report.DurationMs = time.Since(r.start).Milliseconds()
	r.in.metrics.run(r.report.Operation, err)
	if err != nil {
		r.log.Error().Err(err).EmbedObject(r.report).Msg("run failed")
		return r.report, err
	}
	r.log.Info().EmbedObject(r.report).Msg("run finished")
	return r.report, nil
}

func (r *run) skip(set string) {
	r.report.Skipped = append(r.report.Skipped, set)
	r.log.Debug().Str(logging.SET, set).Msg("set not installed, skipped")
}

// idFor: существующая запись → её id, иначе новый
func (r *run) idFor(existing *repo.Record) (string, bool) {
	if existing != nil {
		return existing.ID, false
	}
	return r.in.newID(), true
}

func (r *run) setIDByName(name string) (string, error) {
	existing, err := r.in.repos.Sets.Search(r.ctx, repo.Where("name", name))
	if err != nil {
		return "", errors.Wrapf(err, "lookup set %s", name)
	}
	if existing == nil {
		return "", nil
	}
	return existing.ID, nil
}

func (r *run) ensureSet(def catalog.FieldSet) (string, error) {
	existing, err := r.in.repos.Sets.Search(r.ctx, repo.Where("name", def.Name))
	if err != nil {
		return "", errors.Wrapf(err, "lookup set %s", def.Name)
	}
	id, created := r.idFor(existing)

	err = r.in.repos.Sets.Upsert(r.ctx, []repo.Payload{{
		"id":     id,
		"name":   def.Name,
		"config": map[string]any{"label": def.Label},
	}})
	if err != nil {
		return "", errors.Wrapf(err, "upsert set %s", def.Name)
	}

	if created {
		r.report.SetsCreated++
	} else {
		r.report.SetsUpdated++
	}
	r.in.metrics.ensure(repo.CollectionSets, created)
	r.log.Debug().Str(logging.SET, def.Name).Str("id", id).Bool("created", created).Msg("set ensured")
	return id, nil
}

func (r *run) ensureField(setID string, f catalog.Field) error {
	// поиск по имени → переиспользуем id
	existing, err := r.in.repos.Fields.Search(r.ctx, repo.Where("name", f.Name))
	if err != nil {
		return errors.Wrapf(err, "lookup field %s", f.Name)
	}
	id, created := r.idFor(existing)

	position := f.Position
	if position == 0 {
		position = 1
	}
	config := map[string]any{
		"label":               f.Label,
		"customFieldPosition": position,
	}
	// options только для select, даже если объявлены у другого типа
	if f.Type == catalog.TypeSelect && len(f.Options) > 0 {
		config["options"] = f.Options
	}
	base := repo.Payload{
		"id":     id,
		"name":   f.Name,
		"type":   f.Type,
		"active": true,
		"config": config,
	}

	err = r.withSchema(repo.CollectionFields, func(s Schema) error {
		p := base.Clone()
		p[s.SetKey()] = setID
		return r.in.repos.Fields.Upsert(r.ctx, []repo.Payload{p})
	})
	if err != nil {
		return errors.Wrapf(err, "upsert field %s", f.Name)
	}

	if created {
		r.report.FieldsCreated++
	} else {
		r.report.FieldsUpdated++
	}
	r.in.metrics.ensure(repo.CollectionFields, created)
	r.log.Debug().Str(logging.FIELD, f.Name).Str("id", id).Bool("created", created).Msg("field ensured")
	return nil
}

func (r *run) ensureRelation(setID, setName, entity string) error {
	created := false
	// поиск и вставка повторяются целиком для каждой схемы
	err := r.withSchema(repo.CollectionRelations, func(s Schema) error {
		exists, err := r.in.repos.Relations.Search(r.ctx, repo.Where(s.SetKey(), setID).And("entityName", entity))
		if err != nil {
			return err
		}
		if exists != nil {
			return nil
		}
		if err := r.in.repos.Relations.Create(r.ctx, []repo.Payload{{
			"id":         r.in.newID(),
			s.SetKey():   setID,
			"entityName": entity,
		}}); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "ensure relation %s -> %s", setName, entity)
	}
	if created {
		r.report.RelationsCreated++
		r.in.metrics.ensure(repo.CollectionRelations, true)
	}
	r.log.Debug().Str(logging.SET, setName).Str("entity", entity).Bool("created", created).Msg("relation ensured")
	return nil
}

func (r *run) deleteRelations(setID, setName string) error {
	var ids []string
	err := r.withSchema(repo.CollectionRelations, func(s Schema) error {
		var err error
		ids, err = r.in.repos.Relations.SearchIDs(r.ctx, repo.Where(s.SetKey(), setID))
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "lookup relations of %s", setName)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := r.in.repos.Relations.Delete(r.ctx, ids); err != nil {
		return errors.Wrapf(err, "delete relations of %s", setName)
	}
	r.report.RelationsDeleted += len(ids)
	r.in.metrics.delete(repo.CollectionRelations, len(ids))
	r.log.Debug().Str(logging.SET, setName).Int("count", len(ids)).Msg("relations deleted")
	return nil
}

func (r *run) deleteFieldByName(name string) error {
	existing, err := r.in.repos.Fields.Search(r.ctx, repo.Where("name", name))
	if err != nil {
		return errors.Wrapf(err, "lookup field %s", name)
	}
	if existing == nil {
		return nil
	}
	if err := r.in.repos.Fields.Delete(r.ctx, []string{existing.ID}); err != nil {
		return errors.Wrapf(err, "delete field %s", name)
	}
	r.report.FieldsDeleted++
	r.in.metrics.delete(repo.CollectionFields, 1)
	r.log.Debug().Str(logging.FIELD, name).Msg("field deleted")
	return nil
}

func (r *run) deleteLeftoverFields(setID, setName string) error {
	var ids []string
	err := r.withSchema(repo.CollectionFields, func(s Schema) error {
		var err error
		ids, err = r.in.repos.Fields.SearchIDs(r.ctx, repo.Where(s.SetKey(), setID))
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "lookup leftover fields of %s", setName)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := r.in.repos.Fields.Delete(r.ctx, ids); err != nil {
		return errors.Wrapf(err, "delete leftover fields of %s", setName)
	}
	r.report.FieldsDeleted += len(ids)
	r.in.metrics.delete(repo.CollectionFields, len(ids))
	r.log.Debug().Str(logging.SET, setName).Int("count", len(ids)).Msg("leftover fields deleted")
	return nil
}

// candidates: сначала схема, сработавшая ранее в этом прогоне, затем остальные по порядку
func (r *run) candidates(collection string) []Schema {
	cached, ok := r.active[collection]
	if !ok {
		return r.in.schemas
	}
	out := make([]Schema, 0, len(r.in.schemas))
	out = append(out, cached)
	for _, s := range r.in.schemas {
		if s.Name() != cached.Name() {
			out = append(out, s)
		}
	}
	return out
}

// withSchema выполняет op с первой схемой; если хранилище не знает именно
// этот внешний ключ, повторяет op целиком со следующей.
func (r *run) withSchema(collection string, op func(Schema) error) error {
	candidates := r.candidates(collection)
	var last result
	for i, s := range candidates {
		res := classify(op(s))
		switch res.outcome {
		case outcomeOK:
			r.active[collection] = s
			r.report.Schemas[collection] = s.Name()
			return nil
		case outcomeUnmapped:
			if res.field != s.SetKey() {
				// незамаплен другой атрибут — к схеме внешнего ключа это не относится
				return res.err
			}
			last = res
			if i+1 < len(candidates) {
				next := candidates[i+1]
				r.in.metrics.fallback(collection, s.Name(), next.Name())
				r.log.Debug().
					Str("collection", collection).
					Str("from", s.SetKey()).
					Str("to", next.SetKey()).
					Msg("foreign key property unmapped, retrying with alternate schema")
			}
		default:
			return res.err
		}
	}
	return last.err
}
