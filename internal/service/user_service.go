package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"soundcheck/internal/models"
	"soundcheck/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

const defaultBcryptCost = bcrypt.DefaultCost

var errInvalidCredentials = models.NewUnauthorizedError("invalid credentials")

// SignupInput is a direct reader sign-up.
type SignupInput struct {
	Username string
	Email    string
	Password string
}

// UserService manages accounts outside the author registration workflow.
type UserService struct {
	userRepo   repository.UserRepository
	authorRepo repository.AuthorRepository
	bcryptCost int
}

func NewUserService(userRepo repository.UserRepository, authorRepo repository.AuthorRepository) *UserService {
	return &UserService{userRepo: userRepo, authorRepo: authorRepo, bcryptCost: defaultBcryptCost}
}

// Signup creates a READER account.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)
	if email == "" || username == "" || in.Password == "" {
		return nil, models.NewValidationError("email, username and password are required")
	}

	exists, err := s.userRepo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.NewConflictError("a user with this email already exists")
	}
	exists, err = s.userRepo.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, models.NewConflictError("username is already taken")
	}

	hash, err := hashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username: username,
		Email:    email,
		Password: hash,
		Role:     models.RoleReader,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks credentials by email, or by username when identifier has no @.
func (s *UserService) Login(ctx context.Context, identifier, password string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, errInvalidCredentials
	}

	var (
		user *models.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.userRepo.GetByEmail(ctx, strings.ToLower(identifier))
	} else {
		user, err = s.userRepo.GetByUsername(ctx, identifier)
	}
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, errInvalidCredentials
		}
		return nil, models.NewInternalError(err)
	}
	if user.IsBlocked {
		return nil, models.NewForbiddenError("account is blocked")
	}
	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// GetProfile returns the user and, for authors, their author profile.
func (s *UserService) GetProfile(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role != models.RoleAuthor {
		return user, nil
	}
	author, err := s.authorRepo.GetByUserID(ctx, id)
	if err != nil {
		if models.HasCode(err, models.CodeNotFound) {
			return user, nil
		}
		return nil, err
	}
	profile := *user
	profile.Author = author
	return &profile, nil
}

// SetRole changes the role of the user identified by email or username.
func (s *UserService) SetRole(ctx context.Context, identifier string, role models.UserRole) (*models.User, error) {
	if !role.Valid() {
		return nil, models.NewValidationError(fmt.Sprintf("unknown role %q", role))
	}
	user, err := s.lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.UpdateRole(ctx, user.ID, role); err != nil {
		return nil, err
	}
	user.Role = role
	return user, nil
}

func (s *UserService) ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	return s.userRepo.ListByRole(ctx, role)
}

func (s *UserService) lookup(ctx context.Context, identifier string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	var (
		user *models.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.userRepo.GetByEmail(ctx, strings.ToLower(identifier))
	} else {
		user, err = s.userRepo.GetByUsername(ctx, identifier)
	}
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", identifier)
	}
	return user, nil
}

func hashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// HashPassword hashes a password with the cost used for every stored credential.
func HashPassword(password string) (string, error) {
	return hashPassword(password, defaultBcryptCost)
}
