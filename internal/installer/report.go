package installer

import (
	"time"

	"github.com/rs/zerolog"
)

// Операции установщика
const (
	OpInstall      = "install"
	OpAddRelations = "addRelations"
	OpUninstall    = "uninstall"
)

// Report — итог одного прогона. При ошибке содержит то, что успело выполниться.
type Report struct {
	RunID      string    `json:"runId"`
	Operation  string    `json:"operation"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMs int64     `json:"durationMs"`

	SetsCreated      int `json:"setsCreated"`
	SetsUpdated      int `json:"setsUpdated"`
	FieldsCreated    int `json:"fieldsCreated"`
	FieldsUpdated    int `json:"fieldsUpdated"`
	RelationsCreated int `json:"relationsCreated"`
	RelationsDeleted int `json:"relationsDeleted"`
	FieldsDeleted    int `json:"fieldsDeleted"`
	SetsDeleted      int `json:"setsDeleted"`

	// наборы каталога, которые пропущены (ещё не установлены / уже удалены)
	Skipped []string `json:"skipped,omitempty"`
	// коллекция → имя схемы внешнего ключа, которая сработала
	Schemas map[string]string `json:"schemas,omitempty"`
	// uninstall с keepUserData: ничего не удалялось
	KeptUserData bool `json:"keptUserData,omitempty"`
}

// Changed — были ли записи созданы или удалены
func (r *Report) Changed() bool {
	return r.SetsCreated+r.FieldsCreated+r.RelationsCreated+
		r.RelationsDeleted+r.FieldsDeleted+r.SetsDeleted > 0
}

func (r *Report) MarshalZerologObject(e *zerolog.Event) {
	e.Str("runId", r.RunID).
		Str("op", r.Operation).
		Int64("durationMs", r.DurationMs).
		Int("setsCreated", r.SetsCreated).
		Int("setsUpdated", r.SetsUpdated).
		Int("fieldsCreated", r.FieldsCreated).
		Int("fieldsUpdated", r.FieldsUpdated).
		Int("relationsCreated", r.RelationsCreated).
		Int("relationsDeleted", r.RelationsDeleted).
		Int("fieldsDeleted", r.FieldsDeleted).
		Int("setsDeleted", r.SetsDeleted)
	if len(r.Skipped) > 0 {
		e.Strs("skipped", r.Skipped)
	}
}
