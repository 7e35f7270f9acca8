package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticAccessRepo(t *testing.T) {
	repo := NewStaticAccessRepo([]string{
		"user-1:project-a",
		" user-2:project-b ",
		"malformed",
		":project-c",
		"user-3:",
	})

	ok, err := repo.UserHasAccessTo(context.Background(), "user-1", "project-a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.UserHasAccessTo(context.Background(), "user-2", "project-b")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.UserHasAccessTo(context.Background(), "user-1", "project-b")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = repo.UserHasAccessTo(context.Background(), "", "project-c")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStaticUserDirectory(t *testing.T) {
	dir := NewStaticUserDirectory("example.com")

	user, err := dir.GetByID(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", user.ID)
	require.Equal(t, "user-1@example.com", user.Email)

	_, err = dir.GetByID(context.Background(), "  ")
	require.Error(t, err)
}
