package services

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"fmt"
	"strings"
)

var _ contract.IAuthService = (*AuthService)(nil)

type AuthService struct {
	userRepository repositories.IUserRepository
	tokens         *auth.TokenManager
}

func NewAuthService(repo repositories.IUserRepository, tokens *auth.TokenManager) *AuthService {
	return &AuthService{userRepository: repo, tokens: tokens}
}

func (s *AuthService) Register(email, username, password string) (domain.User, error) {
	valReq := auth.RegisterRequest{
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Username: strings.TrimSpace(username),
		Password: password,
	}

	// Business rules first, before any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		return domain.User{}, err
	}

	// The repository never sees a plain password.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.userRepository.CreateUser(valReq.Email, valReq.Username, hashedPassword)
	if err != nil {
		return domain.User{}, err // ErrUserAlreadyExists if email is taken
	}
	return toDomainUser(user), nil
}

func (s *AuthService) Login(email, password string) (domain.Token, domain.User, error) {
	if err := auth.ValidateLogin(auth.LoginRequest{Email: email, Password: password}); err != nil {
		return "", domain.User{}, errors.ErrInvalidCredentials
	}

	user, err := s.userRepository.GetUserByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		// Generic error to prevent user enumeration
		return "", domain.User{}, errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", domain.User{}, errors.ErrInvalidCredentials
	}

	profile := toDomainUser(user)
	token, err := s.tokens.GenerateToken(profile.Subject(), user.Roles)
	if err != nil {
		return "", domain.User{}, err
	}
	return domain.Token(token), profile, nil
}

func (s *AuthService) Profile(userID string) (domain.User, error) {
	user, err := s.userRepository.GetUserByID(userID)
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(user), nil
}

func toDomainUser(user repositories.User) domain.User {
	return domain.User{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
	}
}
