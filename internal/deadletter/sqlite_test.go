package deadletter

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "deadletters.db")
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteStore_AppendAndList(t *testing.T) {
	db := openTestDB(t)
	s, err := NewSQLiteStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	for i, topic := range []string{"workflows", "workflows", "tasks"} {
		err := s.Append(ctx, DeadLetter{
			Topic:     topic,
			GroupID:   "workflow-processors",
			EventID:   "evt-" + string(rune('a'+i)),
			EventType: "workflow.created",
			Payload:   []byte(`{"workflowId":"wf-1"}`),
			Reason:    "handler failed",
			FailedAt:  now,
		})
		require.NoError(t, err)
	}

	n, err := s.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	letters, err := s.List(ctx, "workflows", 0)
	require.NoError(t, err)
	require.Len(t, letters, 2)
	require.Equal(t, "evt-a", letters[0].EventID, "oldest first")
	require.Equal(t, "workflow-processors", letters[0].GroupID)
	require.JSONEq(t, `{"workflowId":"wf-1"}`, string(letters[0].Payload))

	letters, err = s.List(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, letters, 1)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "deadletters.db")

	db1, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	s1, err := NewSQLiteStore(db1)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s1.Append(ctx, DeadLetter{
		Topic: "workflows", GroupID: "g", EventID: "evt-1",
		EventType: "workflow.created", Reason: "boom", FailedAt: time.Now(),
	}))
	require.NoError(t, db1.Close())

	db2, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db2.Close()
	s2, err := NewSQLiteStore(db2)
	require.NoError(t, err)

	n, err := s2.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestMemoryStore_AppendAndList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, DeadLetter{Topic: "workflows", EventID: "evt-1"}))
	require.NoError(t, s.Append(ctx, DeadLetter{Topic: "tasks", EventID: "evt-2"}))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	letters, err := s.List(ctx, "tasks", 0)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	require.Equal(t, "evt-2", letters[0].EventID)
}
