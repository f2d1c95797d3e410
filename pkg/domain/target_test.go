package domain_test

import (
	"testing"

	"github.com/aretw0/consult/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Resolve(t *testing.T) {
	c := domain.NewCatalog()

	t.Run("Single", func(t *testing.T) {
		targets, multi, err := c.Resolve([]domain.Target{"E"})
		require.NoError(t, err)
		assert.False(t, multi)
		assert.Equal(t, []domain.Target{"E"}, targets)
		assert.Equal(t, "E", domain.WireValue(targets, multi))
	})

	t.Run("Duplicates Collapse", func(t *testing.T) {
		targets, multi, err := c.Resolve([]domain.Target{"L", "L"})
		require.NoError(t, err)
		assert.False(t, multi)
		assert.Equal(t, []domain.Target{"L"}, targets)
	})

	t.Run("All Sentinel", func(t *testing.T) {
		targets, multi, err := c.Resolve([]domain.Target{domain.TargetAll})
		require.NoError(t, err)
		assert.True(t, multi)
		assert.Equal(t, []domain.Target{"E", "L", "B"}, targets)
		assert.Equal(t, "ALL", domain.WireValue(targets, multi))
	})

	t.Run("Full Set In Any Order", func(t *testing.T) {
		targets, multi, err := c.Resolve([]domain.Target{"B", "E", "L"})
		require.NoError(t, err)
		assert.True(t, multi)
		assert.Equal(t, []domain.Target{"E", "L", "B"}, targets)
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, sel := range [][]domain.Target{nil, {}, {"H-1B"}, {"E", "L"}, {"E", "ALL"}} {
			_, _, err := c.Resolve(sel)
			assert.ErrorIs(t, err, domain.ErrInvalidTarget, "%v", sel)
		}
	})
}

func TestNewCatalog_SkipsReserved(t *testing.T) {
	c := domain.NewCatalog(
		domain.TargetInfo{ID: "E"},
		domain.TargetInfo{ID: "ALL"},
		domain.TargetInfo{ID: "E", Title: "dup"},
		domain.TargetInfo{ID: "J-1", Title: "J-1ビザ"},
	)
	assert.Equal(t, []domain.Target{"E", "J-1"}, c.Targets())

	info, ok := c.Info("E")
	require.True(t, ok)
	assert.Equal(t, "E", info.Title)
}
