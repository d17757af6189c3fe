package accounts_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/authserver/accounts"
	"github.com/stretchr/testify/require"
)

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  string
	}{
		{name: "valid", password: "Secret123"},
		{name: "too short", password: "Sec1", wantErr: "at least 8 characters"},
		{name: "no upper", password: "secret123", wantErr: "uppercase"},
		{name: "no lower", password: "SECRET123", wantErr: "lowercase"},
		{name: "no number", password: "SecretSecret", wantErr: "number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := accounts.ValidatePasswordStrength(tt.password)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := accounts.HashPassword("Secret123")
	require.NoError(t, err)
	require.NotEqual(t, "Secret123", hash)
	require.True(t, accounts.CheckPasswordHash("Secret123", hash))
	require.False(t, accounts.CheckPasswordHash("secret123", hash))
}

func TestMemoryRepo(t *testing.T) {
	repo := accounts.NewMemoryRepo()

	alice, err := accounts.New("alice", "Secret123", false)
	require.NoError(t, err)
	require.NoError(t, repo.Create(alice))
	require.NotEmpty(t, alice.ID)

	t.Run("duplicate username", func(t *testing.T) {
		dup, err := accounts.New("alice", "Other1234", false)
		require.NoError(t, err)
		require.ErrorIs(t, repo.Create(dup), accounts.ErrUsernameTaken)
	})

	t.Run("lookups return copies", func(t *testing.T) {
		got, err := repo.GetByUsername("alice")
		require.NoError(t, err)
		require.Equal(t, alice.ID, got.ID)
		got.Admin = true

		again, err := repo.GetByID(alice.ID)
		require.NoError(t, err)
		require.False(t, again.Admin)
	})

	t.Run("last login", func(t *testing.T) {
		at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, repo.SetLastLogin(alice.ID, at))
		got, err := repo.GetByID(alice.ID)
		require.NoError(t, err)
		require.Equal(t, at, got.LastLogin)
		require.ErrorIs(t, repo.SetLastLogin("missing", at), accounts.ErrNotFound)
	})

	t.Run("list pages by username", func(t *testing.T) {
		for _, name := range []string{"carol", "bob"} {
			a, err := accounts.New(name, "Secret123", false)
			require.NoError(t, err)
			require.NoError(t, repo.Create(a))
		}
		all, err := repo.List(0, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		require.Equal(t, "alice", all[0].Username)

		page, err := repo.List(1, 1)
		require.NoError(t, err)
		require.Len(t, page, 1)
		require.Equal(t, "bob", page[0].Username)

		empty, err := repo.List(10, 5)
		require.NoError(t, err)
		require.Empty(t, empty)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(alice.ID))
		_, err := repo.GetByUsername("alice")
		require.ErrorIs(t, err, accounts.ErrNotFound)
		require.ErrorIs(t, repo.Delete(alice.ID), accounts.ErrNotFound)
	})
}
