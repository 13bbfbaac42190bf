//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(email, username, hashedPassword string) (User, error)
	GetUserByEmail(email string) (User, error)
	GetUserByID(id string) (User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// User is the stored account, password hash included.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"createdAt"`
}

func userKey(email string) []byte { return []byte("user:" + email) }
func userIDKey(id string) []byte  { return []byte("userid:" + id) }

// CreateUser persists the user under its email, plus an id index.
// It returns the newly created User.
func (u UserRepository) CreateUser(email, username, hashedPassword string) (User, error) {
	user := User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
		CreatedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(user)
	if err != nil {
		return User{}, fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		key := userKey(email)
		if _, err := txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(userIDKey(user.ID), []byte(email))
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (u UserRepository) GetUserByEmail(email string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		return getUser(txn, userKey(email), &user)
	})
	return user, err
}

func (u UserRepository) GetUserByID(id string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userIDKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		email, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getUser(txn, userKey(string(email)), &user)
	})
	return user, err
}

func getUser(txn *badger.Txn, key []byte, dst *User) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return errors.ErrUserNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
}
