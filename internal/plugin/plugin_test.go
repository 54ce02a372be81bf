package plugin

import (
	"context"
	"sync"
	"testing"

	"fieldsync/internal/catalog"
	"fieldsync/internal/dsl"
	"fieldsync/internal/installer"
	"fieldsync/internal/repo"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Plugin, *repo.MemoryStore) {
	t.Helper()
	ents, err := dsl.LoadVariant(dsl.VariantStandard)
	require.NoError(t, err)
	st, err := repo.NewMemoryStore(ents)
	require.NoError(t, err)
	in := installer.New(st.Repositories(), installer.WithLogger(zerolog.Nop()))
	return New(in, catalog.Default()), st
}

func total(st *repo.MemoryStore) int {
	n := 0
	for _, c := range repo.Collections {
		n += st.Count(c)
	}
	return n
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	p, st := setup(t)

	rep, err := p.Install(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Changed())
	assert.Equal(t, 4, total(st))

	before := st.Snapshot(repo.CollectionFields)
	rep, err = p.Update(ctx)
	require.NoError(t, err)
	assert.Nil(t, rep)
	assert.Equal(t, before, st.Snapshot(repo.CollectionFields))

	rep, err = p.Deactivate(ctx)
	require.NoError(t, err)
	assert.Nil(t, rep)
	assert.Equal(t, 4, total(st))

	rep, err = p.Activate(ctx)
	require.NoError(t, err)
	assert.Equal(t, installer.OpAddRelations, rep.Operation)

	_, err = p.Uninstall(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, total(st))
}

func TestUninstallKeepUserData(t *testing.T) {
	ctx := context.Background()
	p, st := setup(t)

	_, err := p.Install(ctx)
	require.NoError(t, err)
	before := map[string][]repo.Record{}
	for _, c := range repo.Collections {
		before[c] = st.Snapshot(c)
	}

	rep, err := p.Uninstall(ctx, true)
	require.NoError(t, err)
	assert.True(t, rep.KeptUserData)
	assert.False(t, rep.Changed())
	for _, c := range repo.Collections {
		assert.Equal(t, before[c], st.Snapshot(c))
	}
}

func TestActivateRepairsRelation(t *testing.T) {
	ctx := context.Background()
	p, st := setup(t)
	_, err := p.Install(ctx)
	require.NoError(t, err)

	rel := st.Repositories().Relations
	ids, err := rel.SearchIDs(ctx, repo.Criteria{})
	require.NoError(t, err)
	require.NoError(t, rel.Delete(ctx, ids))

	rep, err := p.Activate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.RelationsCreated)
	assert.Equal(t, 1, st.Count(repo.CollectionRelations))
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	p, st := setup(t)

	for _, hook := range Hooks {
		_, err := p.Run(ctx, hook, false)
		require.NoError(t, err, hook)
	}
	// uninstall последний
	assert.Equal(t, 0, total(st))

	_, err := p.Run(ctx, "reinstall", false)
	var unknown *UnknownHookError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "reinstall", unknown.Hook)
}

func TestInstallerBuiltFromRepositories(t *testing.T) {
	ents, err := dsl.LoadVariant(dsl.VariantLegacy)
	require.NoError(t, err)
	st, err := repo.NewMemoryStore(ents)
	require.NoError(t, err)

	p := FromRepositories(st.Repositories(), catalog.Default())
	rec := p.Installer()
	require.NotNil(t, rec)
	assert.Same(t, rec, p.Installer())

	_, err = p.Install(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, total(st))
}

func TestInstallerSharedAcrossGoroutines(t *testing.T) {
	ents, err := dsl.LoadVariant(dsl.VariantStandard)
	require.NoError(t, err)
	st, err := repo.NewMemoryStore(ents)
	require.NoError(t, err)
	p := FromRepositories(st.Repositories(), catalog.Default())

	// под -race: параллельные чтения не должны видеть запись
	got := make(chan Reconciler, 8)
	var wg sync.WaitGroup
	for i := 0; i < cap(got); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got <- p.Installer()
		}()
	}
	wg.Wait()
	close(got)
	for rec := range got {
		assert.Same(t, p.Installer(), rec)
	}
}
