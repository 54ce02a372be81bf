// Package plugin связывает хуки жизненного цикла хоста с установщиком custom field.
package plugin

import (
	"context"

	"fieldsync/internal/catalog"
	"fieldsync/internal/installer"
	"fieldsync/internal/logging"
	"fieldsync/internal/repo"

	"github.com/rs/zerolog"
)

// Reconciler — то, что плагин ожидает от установщика
type Reconciler interface {
	Install(ctx context.Context, cat catalog.Catalog) (*installer.Report, error)
	AddRelations(ctx context.Context, cat catalog.Catalog) (*installer.Report, error)
	Uninstall(ctx context.Context, cat catalog.Catalog) (*installer.Report, error)
}

// Хуки
const (
	HookInstall    = "install"
	HookUninstall  = "uninstall"
	HookActivate   = "activate"
	HookDeactivate = "deactivate"
	HookUpdate     = "update"
)

// Hooks — все хуки в порядке жизненного цикла
var Hooks = []string{HookInstall, HookActivate, HookUpdate, HookDeactivate, HookUninstall}

type Plugin struct {
	rec     Reconciler
	catalog catalog.Catalog
	log     zerolog.Logger
}

func New(rec Reconciler, cat catalog.Catalog) *Plugin {
	return &Plugin{rec: rec, catalog: cat, log: logging.Package("plugin")}
}

// FromRepositories собирает установщик с настройками по умолчанию
func FromRepositories(repos repo.Set, cat catalog.Catalog) *Plugin {
	return New(installer.New(repos), cat)
}

// Installer не меняется после создания плагина: SwapCatalog переносит его в новый
func (p *Plugin) Installer() Reconciler { return p.rec }

func (p *Plugin) Catalog() catalog.Catalog { return p.catalog }

func (p *Plugin) Install(ctx context.Context) (*installer.Report, error) {
	p.log.Info().Str("hook", HookInstall).Int("sets", p.catalog.Len()).Msg("installing custom fields")
	return p.Installer().Install(ctx, p.catalog)
}

// Uninstall при keepUserData ничего не трогает
func (p *Plugin) Uninstall(ctx context.Context, keepUserData bool) (*installer.Report, error) {
	if keepUserData {
		p.log.Info().Str("hook", HookUninstall).Msg("keepUserData set, custom fields left in place")
		return &installer.Report{Operation: installer.OpUninstall, KeptUserData: true}, nil
	}
	p.log.Info().Str("hook", HookUninstall).Msg("removing custom fields")
	return p.Installer().Uninstall(ctx, p.catalog)
}

// Activate чинит связи наборов с сущностями
func (p *Plugin) Activate(ctx context.Context) (*installer.Report, error) {
	p.log.Info().Str("hook", HookActivate).Msg("repairing relations")
	return p.Installer().AddRelations(ctx, p.catalog)
}

func (p *Plugin) Deactivate(ctx context.Context) (*installer.Report, error) {
	p.log.Info().Str("hook", HookDeactivate).Msg("nothing to do")
	return nil, nil
}

// Update ничего не делает: установщик вызывают только install, activate и uninstall.
// Новые поля каталога доезжают при следующем install.
func (p *Plugin) Update(ctx context.Context) (*installer.Report, error) {
	p.log.Info().Str("hook", HookUpdate).Msg("nothing to do")
	return nil, nil
}

// Run вызывает хук по имени (CLI, HTTP)
func (p *Plugin) Run(ctx context.Context, hook string, keepUserData bool) (*installer.Report, error) {
	switch hook {
	case HookInstall:
		return p.Install(ctx)
	case HookUninstall:
		return p.Uninstall(ctx, keepUserData)
	case HookActivate:
		return p.Activate(ctx)
	case HookDeactivate:
		return p.Deactivate(ctx)
	case HookUpdate:
		return p.Update(ctx)
	}
	return nil, &UnknownHookError{Hook: hook}
}

type UnknownHookError struct{ Hook string }

func (e *UnknownHookError) Error() string { return "unknown lifecycle hook: " + e.Hook }
