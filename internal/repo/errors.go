package repo

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// UnmappedFieldError — запись или запрос ссылается на атрибут, которого нет
// в текущей схеме коллекции.
type UnmappedFieldError struct {
	Collection string
	Field      string
}

func (e *UnmappedFieldError) Error() string {
	return fmt.Sprintf("field %q is not mapped in collection %q", e.Field, e.Collection)
}

// IsUnmapped возвращает имя незамапленного атрибута, если err (или что-то в его цепочке) — UnmappedFieldError.
func IsUnmapped(err error) (string, bool) {
	var u *UnmappedFieldError
	if errors.As(err, &u) {
		return u.Field, true
	}
	return "", false
}
