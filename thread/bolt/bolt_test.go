package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/internal/testutil"
)

var _ core.ThreadStore = (*Store)(nil)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	require.NoError(t, err)
	return s
}

func TestStore_Contract(t *testing.T) {
	testutil.RunThreadStoreSuite(t, func(t *testing.T) core.ThreadStore {
		s := openTestStore(t, filepath.Join(t.TempDir(), "threads.db"))
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "threads.db")

	s := openTestStore(t, path)
	th := testutil.NewThreadBuilder("user-1").Title("persisted").
		Messages(testutil.UserTexts("one", "two")...).
		Build(t, s)
	require.NoError(t, s.Close())

	s = openTestStore(t, path)
	defer s.Close()

	got, err := s.GetThread(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Title)

	seq, err := s.AppendMessage(ctx, th.ID, core.NewTextMessage(core.RoleAssistant, "three"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, seq, "sequence allocation continues after reopen")

	msgs, err := s.GetRecentMessages(ctx, th.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, testutil.Texts(msgs))
}

func TestStore_SharedDatabase(t *testing.T) {
	owner := openTestStore(t, filepath.Join(t.TempDir(), "shared.db"))
	defer owner.Close()

	borrowed, err := New(owner.DB())
	require.NoError(t, err)
	require.NoError(t, borrowed.Close(), "borrowed store must not close the shared db")

	_, err = owner.CreateThread(context.Background(), "user-1", "")
	require.NoError(t, err)
}
