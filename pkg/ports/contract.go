package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/consult/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore implementation
// adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		sess := domain.NewSession(sessionID)
		sess.Generation = 3
		sess.Targets = []domain.Target{"E"}
		sess.History = []string{"Q1", "Q2"}
		sess.CurrentQuestion = "Q2"
		sess.Answers["Q1"] = domain.AnswerUnknown
		sess.Caveats = []domain.CaveatGroup{{Conclusion: "c", Operator: domain.OperatorOr, Conditions: []string{"Q1"}}}

		err := store.Save(ctx, sessionID, sess)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, sess.Generation, loaded.Generation)
		assert.Equal(t, sess.History, loaded.History)
		assert.Equal(t, "Q2", loaded.CurrentQuestion)
		assert.Equal(t, domain.AnswerUnknown, loaded.Answers["Q1"], "unknown answers must survive persistence")
		assert.Equal(t, sess.Caveats, loaded.Caveats)
	})

	t.Run("Load Returns Copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.History = append(loaded.History, "mutated")

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.NotContains(t, again.History, "mutated")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Save Rejects Older Generation", func(t *testing.T) {
		older := domain.NewSession(sessionID)
		older.Generation = 2
		older.History = []string{"stale"}
		err := store.Save(ctx, sessionID, older)
		assert.ErrorIs(t, err, domain.ErrSuperseded)

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), loaded.Generation)
		assert.Equal(t, []string{"Q1", "Q2"}, loaded.History)

		same := loaded.Clone()
		same.History = []string{"Q1"}
		same.CurrentQuestion = "Q1"
		require.NoError(t, store.Save(ctx, sessionID, same), "same generation may be overwritten")

		newer := domain.NewSession(sessionID)
		newer.Generation = 4
		require.NoError(t, store.Save(ctx, sessionID, newer))
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewSession(id1))
		_ = store.Save(ctx, id2, domain.NewSession(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
