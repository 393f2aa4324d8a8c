package flags_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/abkit/pkg/flags"
)

func TestMemoryProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("initial flags", func(t *testing.T) {
		t.Parallel()
		p, err := flags.NewMemoryProvider(nil, &flags.Flag{Name: "dark-mode", Enabled: true})
		require.NoError(t, err)
		f, err := p.GetFlag(ctx, "dark-mode")
		require.NoError(t, err)
		assert.True(t, f.Enabled)
		assert.False(t, f.CreatedAt.IsZero())
		assert.Equal(t, f.CreatedAt, f.UpdatedAt)

		_, err = flags.NewMemoryProvider(&flags.Flag{})
		assert.ErrorIs(t, err, flags.ErrInvalidFlag)
	})

	t.Run("crud", func(t *testing.T) {
		t.Parallel()
		p, err := flags.NewMemoryProvider()
		require.NoError(t, err)

		require.NoError(t, p.CreateFlag(ctx, &flags.Flag{Name: "beta", Params: map[string]any{"limit": 10}}))
		assert.ErrorIs(t, p.CreateFlag(ctx, &flags.Flag{Name: "beta"}), flags.ErrFlagExists)
		assert.ErrorIs(t, p.CreateFlag(ctx, nil), flags.ErrInvalidFlag)

		created, err := p.GetFlag(ctx, "beta")
		require.NoError(t, err)

		require.NoError(t, p.UpdateFlag(ctx, &flags.Flag{Name: "beta", Enabled: true}))
		updated, err := p.GetFlag(ctx, "beta")
		require.NoError(t, err)
		assert.True(t, updated.Enabled)
		assert.Equal(t, created.CreatedAt, updated.CreatedAt)
		assert.ErrorIs(t, p.UpdateFlag(ctx, &flags.Flag{Name: "ghost"}), flags.ErrFlagNotFound)

		require.NoError(t, p.DeleteFlag(ctx, "beta"))
		_, err = p.GetFlag(ctx, "beta")
		assert.ErrorIs(t, err, flags.ErrFlagNotFound)
		assert.ErrorIs(t, p.DeleteFlag(ctx, "beta"), flags.ErrFlagNotFound)
	})

	t.Run("copies are detached", func(t *testing.T) {
		t.Parallel()
		in := &flags.Flag{Name: "x", Params: map[string]any{"a": 1}, Tags: []string{"t"}}
		p, err := flags.NewMemoryProvider(in)
		require.NoError(t, err)
		in.Params["a"] = 2
		in.Tags[0] = "changed"

		f, _ := p.GetFlag(ctx, "x")
		assert.Equal(t, 1, f.Params["a"])
		f.Tags[0] = "mutated"
		again, _ := p.GetFlag(ctx, "x")
		assert.Equal(t, []string{"t"}, again.Tags)
	})

	t.Run("list by tag", func(t *testing.T) {
		t.Parallel()
		p, err := flags.NewMemoryProvider(
			&flags.Flag{Name: "b", Tags: []string{"ui"}},
			&flags.Flag{Name: "a", Tags: []string{"ui", "beta"}},
			&flags.Flag{Name: "c", Tags: []string{"api"}},
		)
		require.NoError(t, err)

		all, err := p.ListFlags(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "a", all[0].Name)

		ui, err := p.ListFlags(ctx, "ui")
		require.NoError(t, err)
		require.Len(t, ui, 2)
		assert.Equal(t, "b", ui[1].Name)

		none, err := p.ListFlags(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
