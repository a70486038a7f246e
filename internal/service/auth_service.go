package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"

	"yuzu/internal/config"
	authmodel "yuzu/internal/model/auth"
	"yuzu/internal/pkg/id"
	"yuzu/internal/pkg/jwt"
	"yuzu/internal/pkg/password"
	authrepo "yuzu/internal/repository/auth"
)

var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrInvalidToken       = errors.New("无效的Token")
	ErrTokenExpired       = errors.New("Token已过期")
	ErrUsernameTaken      = errors.New("用户名已被占用")
)

// AuthService 认证服务
type AuthService struct {
	userRepo         *authrepo.UserRepo
	refreshTokenRepo *authrepo.RefreshTokenRepo
	jwtUtil          *jwt.JWT
	refreshExpiry    time.Duration
}

// NewAuthService 创建认证服务
func NewAuthService(userRepo *authrepo.UserRepo, refreshTokenRepo *authrepo.RefreshTokenRepo, cfg *config.AuthConfig) *AuthService {
	return &AuthService{
		userRepo:         userRepo,
		refreshTokenRepo: refreshTokenRepo,
		jwtUtil:          jwt.NewJWT(cfg.JWTSecret, cfg.AccessTokenExpiry),
		refreshExpiry:    cfg.RefreshTokenExpiry,
	}
}

// Login 用户登录
func (s *AuthService) Login(ctx context.Context, req *authmodel.LoginRequest) (*authmodel.LoginResponse, error) {
	user, err := s.userRepo.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// 不泄露用户是否存在
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !password.Verify(req.Password, user.Password) {
		return nil, ErrInvalidCredentials
	}

	accessToken, err := s.jwtUtil.GenerateToken(user.ID, user.Username, user.Role.String())
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.issueRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdateLastLoginAt(ctx, user.ID); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to update last login time")
	}

	return &authmodel.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtUtil.GetExpiration().Seconds()),
		User:         user,
	}, nil
}

// RefreshToken 刷新Token（轮换：旧的作废，换发新的）
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*authmodel.RefreshResponse, error) {
	stored, err := s.refreshTokenRepo.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if stored.IsExpired() {
		_ = s.refreshTokenRepo.DeleteByToken(ctx, refreshToken)
		return nil, ErrTokenExpired
	}

	user, err := s.userRepo.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if err := s.refreshTokenRepo.DeleteByToken(ctx, refreshToken); err != nil {
		return nil, err
	}

	accessToken, err := s.jwtUtil.GenerateToken(user.ID, user.Username, user.Role.String())
	if err != nil {
		return nil, err
	}

	newRefreshToken, err := s.issueRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &authmodel.RefreshResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		ExpiresIn:    int64(s.jwtUtil.GetExpiration().Seconds()),
	}, nil
}

// Logout 用户登出（作废Refresh Token）
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.refreshTokenRepo.DeleteByToken(ctx, refreshToken)
}

// GetUserByID 获取用户信息
func (s *AuthService) GetUserByID(ctx context.Context, userID string) (*authmodel.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ValidateToken 验证Access Token（供中间件使用）
func (s *AuthService) ValidateToken(tokenString string) (*jwt.Claims, error) {
	claims, err := s.jwtUtil.ValidateToken(tokenString)
	if err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// issueRefreshToken 生成并存储Refresh Token
func (s *AuthService) issueRefreshToken(ctx context.Context, userID string) (string, error) {
	token := jwt.GenerateRefreshToken()
	record := &authmodel.RefreshToken{
		ID:        id.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: time.Now().Add(s.refreshExpiry),
	}
	if err := s.refreshTokenRepo.Create(ctx, record); err != nil {
		return "", err
	}
	return token, nil
}
