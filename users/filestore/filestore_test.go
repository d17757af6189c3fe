package filestore_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/users/filestore"
	"github.com/stretchr/testify/require"
)

const key = "paperlink.username"

func newStore(t *testing.T) *filestore.Store {
	t.Helper()
	return filestore.New(filepath.Join(t.TempDir(), "paperlink", "session.json"), key)
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := newStore(t)
	name, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, name)
}

func TestStore_SaveLoadRemove(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Save(ctx, "alice"))
	name, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice", name)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(s.Path())
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	require.NoError(t, s.Remove(ctx))
	_, err = os.Stat(s.Path())
	require.True(t, os.IsNotExist(err))

	require.NoError(t, s.Remove(ctx))
}

func TestStore_PreservesOtherKeys(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"other.app":"carol"}`), 0600))

	s := filestore.New(path, key)
	require.NoError(t, s.Save(ctx, "alice"))
	require.NoError(t, s.Remove(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var values map[string]string
	require.NoError(t, json.Unmarshal(data, &values))
	require.Equal(t, map[string]string{"other.app": "carol"}, values)
}

func TestStore_CorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	s := filestore.New(path, key)
	_, err := s.Load(ctx)
	require.Error(t, err)

	require.NoError(t, s.Save(ctx, "alice"))
	name, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice", name)
}

func TestStore_WatchSeesOtherWriters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "session.json")
	watched := filestore.New(path, key)
	other := filestore.New(path, key)

	changes := make(chan string, 8)
	require.NoError(t, watched.Watch(ctx, func(name string) { changes <- name }))

	require.NoError(t, other.Save(ctx, "bob"))
	waitFor(t, changes, "bob")

	require.NoError(t, other.Remove(ctx))
	waitFor(t, changes, "")
}

func waitFor(t *testing.T, changes <-chan string, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-changes:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}
