package repositories

import (
	"chat-relay/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserRepository_Create_And_Get(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openDB(t))

	created, err := repository.CreateUser("alice@example.com", "alice", "$argon2id$hash")
	req.NoError(err)
	req.NotEmpty(created.ID)
	req.Equal([]string{"user"}, created.Roles)

	byEmail, err := repository.GetUserByEmail("alice@example.com")
	req.NoError(err)
	req.Equal(created.ID, byEmail.ID)
	req.Equal("alice", byEmail.Username)
	req.Equal("$argon2id$hash", byEmail.PasswordHash)

	byID, err := repository.GetUserByID(created.ID)
	req.NoError(err)
	req.Equal("alice@example.com", byID.Email)
}

func TestUserRepository_Duplicate_Email(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openDB(t))

	_, err := repository.CreateUser("alice@example.com", "alice", "h")
	req.NoError(err)
	_, err = repository.CreateUser("alice@example.com", "alice2", "h")
	req.ErrorIs(err, errors.ErrUserAlreadyExists)
}

func TestUserRepository_Not_Found(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openDB(t))

	_, err := repository.GetUserByEmail("ghost@example.com")
	req.ErrorIs(err, errors.ErrUserNotFound)
	_, err = repository.GetUserByID("nope")
	req.ErrorIs(err, errors.ErrUserNotFound)
}
