// Package logging настраивает глобальный zerolog-логгер и выдаёт логгеры пакетов.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// поля логгера
const (
	PACKAGE   = "pkg"
	RUN       = "run"
	OPERATION = "op"
	SET       = "set"
	FIELD     = "field"
)

// Format вывода
const (
	FormatJSON    = "json"
	FormatConsole = "console"
	FormatAuto    = "auto"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// Setup настраивает глобальный логгер. Пустой/неизвестный уровень → info.
// format=auto: console для TTY, иначе json.
func Setup(level, format string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" || format == FormatAuto {
		format = FormatJSON
		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			format = FormatConsole
		}
	}
	if format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return log.Logger
}

// Package возвращает логгер с pkg={name} от текущего глобального
func Package(name string) zerolog.Logger {
	return log.With().Str(PACKAGE, name).Logger()
}
