package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"

	"yuzu/internal/model"
	authmodel "yuzu/internal/model/auth"
	"yuzu/internal/pkg/apperr"
	"yuzu/internal/pkg/id"
	"yuzu/internal/pkg/password"
	"yuzu/internal/repository"
	authrepo "yuzu/internal/repository/auth"
)

const adminConversationLimit = 100

// UserSummary 管理端用户列表项
type UserSummary struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	Role              string `json:"role"`
	ConversationCount int64  `json:"conversation_count"`
	CreatedAt         string `json:"created_at"`
}

// AdminService 管理端服务（用户管理 + 全量会话查看）
type AdminService struct {
	userRepo         *authrepo.UserRepo
	refreshTokenRepo *authrepo.RefreshTokenRepo
	convRepo         *repository.ConversationRepo
	msgRepo          *repository.MessageRepo
}

// NewAdminService 创建管理端服务
func NewAdminService(userRepo *authrepo.UserRepo, refreshTokenRepo *authrepo.RefreshTokenRepo, convRepo *repository.ConversationRepo, msgRepo *repository.MessageRepo) *AdminService {
	return &AdminService{
		userRepo:         userRepo,
		refreshTokenRepo: refreshTokenRepo,
		convRepo:         convRepo,
		msgRepo:          msgRepo,
	}
}

// ListUsers 查询全部用户（带对话数）
func (s *AdminService) ListUsers(ctx context.Context) ([]*UserSummary, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]*UserSummary, 0, len(users))
	for _, user := range users {
		count, err := s.convRepo.CountByUserID(ctx, user.ID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to count conversations")
		}
		summaries = append(summaries, &UserSummary{
			ID:                user.ID,
			Username:          user.Username,
			Role:              user.Role.String(),
			ConversationCount: count,
			CreatedAt:         user.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return summaries, nil
}

// CreateUser 创建用户
func (s *AdminService) CreateUser(ctx context.Context, req *model.CreateUserRequest) (*authmodel.User, error) {
	if _, err := s.userRepo.FindByUsername(ctx, req.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	role := authmodel.RoleUser
	if req.IsAdmin {
		role = authmodel.RoleAdmin
	}

	user := &authmodel.User{
		ID:       id.New(),
		Username: req.Username,
		Password: hashed,
		Role:     role,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser 删除用户及其全部对话和消息
func (s *AdminService) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.userRepo.FindByID(ctx, userID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrUserNotFound
		}
		return err
	}

	convIDs, err := s.convRepo.DeleteByUserID(ctx, userID)
	if err != nil {
		return errors.Join(apperr.ErrPersistenceFailure, err)
	}
	for _, convID := range convIDs {
		if err := s.msgRepo.DeleteByConversation(ctx, convID); err != nil {
			log.Warn().Err(err).Str("conversation_id", convID).Msg("failed to delete conversation messages")
		}
	}

	if err := s.refreshTokenRepo.DeleteByUserID(ctx, userID); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to revoke refresh tokens")
	}
	return s.userRepo.Delete(ctx, userID)
}

// ListAllConversations 查询全部用户的最近对话（带用户名和消息数）
func (s *AdminService) ListAllConversations(ctx context.Context) ([]*model.ConversationSummary, error) {
	convs, err := s.convRepo.ListAll(ctx, adminConversationLimit)
	if err != nil {
		return nil, err
	}

	// 用户名按 userID 去重查询
	usernames := make(map[string]string)
	summaries := make([]*model.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		username, ok := usernames[conv.UserID]
		if !ok {
			if user, err := s.userRepo.FindByID(ctx, conv.UserID); err == nil {
				username = user.Username
			}
			usernames[conv.UserID] = username
		}

		count, err := s.msgRepo.CountByConversation(ctx, conv.ID.Hex())
		if err != nil {
			log.Warn().Err(err).Str("conversation_id", conv.ID.Hex()).Msg("failed to count messages")
		}

		summaries = append(summaries, &model.ConversationSummary{
			ID:           conv.ID.Hex(),
			Title:        conv.Title,
			Model:        conv.Model,
			Username:     username,
			MessageCount: count,
			CreatedAt:    conv.CreatedAt,
		})
	}
	return summaries, nil
}
