package service

import (
	"context"
	"errors"
	"strings"

	apperr "Photo_Archive/internal/errors"
	"Photo_Archive/internal/model"
	"Photo_Archive/internal/pkg"
	"Photo_Archive/internal/repository/interfaces"

	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	repo     interfaces.UserRepository
	sessions interfaces.SessionRepository
	cost     int
}

func NewUserService(repo interfaces.UserRepository, sessions interfaces.SessionRepository) *UserService {
	return &UserService{repo: repo, sessions: sessions, cost: bcrypt.DefaultCost}
}

func (s *UserService) Register(ctx context.Context, username, password, email string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || len(password) < 6 {
		return nil, apperr.BadRequest("username, email and a password of at least 6 characters are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	user := &model.User{
		Username: username,
		Password: string(hash),
		Email:    email,
		Role:     model.RoleUser,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, interfaces.ErrDuplicate) {
			return nil, apperr.ResourceExists("username or email already registered")
		}
		return nil, apperr.StoreUnavailable(err)
	}
	return user, nil
}

// Login 签发新 token 对，并覆盖 redis 中的旧 token（单点登录）
func (s *UserService) Login(ctx context.Context, username, password string) (*pkg.Pair, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, apperr.InvalidCredentials()
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, apperr.InvalidCredentials()
	}
	return s.issue(ctx, user)
}

func (s *UserService) issue(ctx context.Context, user *model.User) (*pkg.Pair, error) {
	pair, err := pkg.GeneratePair(user.ID, user.Role)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if err := s.sessions.AddUserToken(ctx, user.ID, pair.AccessToken); err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return pair, nil
}

func (s *UserService) Logout(ctx context.Context, userID uint64) error {
	if err := s.sessions.DeleteUserToken(ctx, userID); err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

// Refresh 用 refresh token 换新的一对；角色以库中当前值为准
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*pkg.Pair, error) {
	claims, err := pkg.ParseRefresh(refreshToken)
	if err != nil {
		return nil, apperr.Unauthorized("invalid or expired refresh token")
	}
	user, err := s.repo.FindByID(ctx, claims.UserID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, apperr.Unauthorized("user no longer exists")
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return s.issue(ctx, user)
}

// ChangePassword 登录态修改密码，成功后强制下线
func (s *UserService) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	if len(newPassword) < 6 {
		return apperr.BadRequest("new password must be at least 6 characters")
	}
	user, err := s.repo.FindByID(ctx, userID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return apperr.NotFound("user", userID)
	}
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)) != nil {
		return apperr.New(apperr.ErrInvalidCredentials, "old password is incorrect")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.repo.UpdatePassword(ctx, user, string(hash)); err != nil {
		return apperr.StoreUnavailable(err)
	}
	return s.Logout(ctx, userID)
}

// Authenticate 校验 access token 与 redis 中的当前会话一致，并续期
func (s *UserService) Authenticate(ctx context.Context, token string) (*pkg.Claims, error) {
	claims, err := pkg.ParseAccess(token)
	if err != nil {
		return nil, apperr.Unauthorized("invalid or expired token")
	}
	current, err := s.sessions.GetUserToken(ctx, claims.UserID)
	if err != nil || current != token {
		return nil, apperr.Unauthorized("account has been logged in elsewhere")
	}
	if err := s.sessions.ExtendUserToken(ctx, claims.UserID); err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return claims, nil
}
