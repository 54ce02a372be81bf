package repo

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"fieldsync/internal/dsl"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/buntdb"
)

// BuntStore хранит записи в buntdb как JSON под ключами "<коллекция>:<id>".
// Путь ":memory:" — без файла.
type BuntStore struct {
	Mappings map[string]*Mapping
	db       *buntdb.DB
	once     sync.Once
}

// OpenBuntStore открывает (или создаёт) файл базы
func OpenBuntStore(path string, entities map[string]*dsl.Entity) (*BuntStore, error) {
	mappings, err := Mappings(entities)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		path = ":memory:"
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open bunt db %s", path)
	}
	return &BuntStore{Mappings: mappings, db: db}, nil
}

// Close сжимает и закрывает базу
func (s *BuntStore) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.db.Shrink()
		err = s.db.Close()
	})
	return err
}

func (s *BuntStore) Repositories() Set {
	return Set{
		Sets:      &buntCollection{db: s.db, mapping: s.Mappings[CollectionSets]},
		Relations: &buntCollection{db: s.db, mapping: s.Mappings[CollectionRelations]},
		Fields:    &buntCollection{db: s.db, mapping: s.Mappings[CollectionFields]},
	}
}

// Count — число записей в коллекции
func (s *BuntStore) Count(collection string) (int, error) {
	n := 0
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(collection+":*", func(_, _ string) bool {
			n++
			return true
		})
	})
	return n, err
}

type buntCollection struct {
	db      *buntdb.DB
	mapping *Mapping
}

var _ Repository = (*buntCollection)(nil)

func (c *buntCollection) Collection() string { return c.mapping.Collection() }

func (c *buntCollection) key(id string) string { return c.Collection() + ":" + id }

// scan перебирает записи коллекции по возрастанию ключа, пока fn возвращает true
func (c *buntCollection) scan(tx *buntdb.Tx, fn func(rec *Record) bool) error {
	var decodeErr error
	err := tx.AscendKeys(c.Collection()+":*", func(_, value string) bool {
		var rec Record
		if err := json.Unmarshal([]byte(value), &rec); err != nil {
			decodeErr = errors.Wrapf(err, "decode %s record", c.Collection())
			return false
		}
		return fn(&rec)
	})
	if err != nil {
		return err
	}
	return decodeErr
}

func (c *buntCollection) Search(_ context.Context, cr Criteria) (*Record, error) {
	if err := c.mapping.CheckCriteria(cr); err != nil {
		return nil, err
	}
	// ключи упорядочены по id, а "первая" запись — самая ранняя по created_at
	var found *Record
	err := c.db.View(func(tx *buntdb.Tx) error {
		return c.scan(tx, func(rec *Record) bool {
			if matches(rec, cr) && (found == nil || earlier(rec, found)) {
				found = rec
			}
			return true
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "search %s", c.Collection())
	}
	return found, nil
}

func (c *buntCollection) SearchIDs(_ context.Context, cr Criteria) ([]string, error) {
	if err := c.mapping.CheckCriteria(cr); err != nil {
		return nil, err
	}
	var ids []string
	err := c.db.View(func(tx *buntdb.Tx) error {
		return c.scan(tx, func(rec *Record) bool {
			if matches(rec, cr) {
				ids = append(ids, rec.ID)
			}
			return true
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "search ids %s", c.Collection())
	}
	return ids, nil
}

func (c *buntCollection) Upsert(_ context.Context, payloads []Payload) error {
	return c.write(payloads, true)
}

func (c *buntCollection) Create(_ context.Context, payloads []Payload) error {
	return c.write(payloads, false)
}

func (c *buntCollection) get(tx *buntdb.Tx, id string) (*Record, error) {
	val, err := tx.Get(c.key(id))
	if err != nil {
		if err == buntdb.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, errors.Wrapf(err, "decode %s record %s", c.Collection(), id)
	}
	return &rec, nil
}

func (c *buntCollection) write(payloads []Payload, upsert bool) error {
	// транзакция buntdb откатывается целиком при ошибке
	return c.db.Update(func(tx *buntdb.Tx) error {
		existing := make(map[string]*Record, len(payloads))
		for _, p := range payloads {
			id := p.ID()
			if id == "" {
				continue
			}
			rec, err := c.get(tx, id)
			if err != nil {
				return err
			}
			if rec != nil {
				existing[id] = rec
			}
		}
		exists := func(id string) bool { return existing[id] != nil }
		if err := c.mapping.CheckPayloads(payloads, exists); err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, p := range payloads {
			id := p.ID()
			doc, err := normalize(p)
			if err != nil {
				return err
			}
			rec := existing[id]
			switch {
			case rec != nil && !upsert:
				return errors.Wrapf(ErrDuplicateID, "%s %s", c.Collection(), id)
			case rec != nil:
				for k, v := range doc {
					rec.Data[k] = v
				}
				rec.Version++
				rec.UpdatedAt = now
			default:
				rec = &Record{ID: id, Version: 1, CreatedAt: now, UpdatedAt: now, Data: doc}
			}
			b, err := json.Marshal(rec)
			if err != nil {
				return errors.Wrapf(err, "encode %s record %s", c.Collection(), id)
			}
			if _, _, err := tx.Set(c.key(id), string(b), nil); err != nil {
				return err
			}
			// следующий payload с тем же id увидит только что записанное
			existing[id] = rec
		}
		return nil
	})
}

func (c *buntCollection) Delete(_ context.Context, ids []string) error {
	return c.db.Update(func(tx *buntdb.Tx) error {
		for _, id := range ids {
			if _, err := tx.Delete(c.key(id)); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
}

func earlier(a, b *Record) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
