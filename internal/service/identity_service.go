package service

import (
	"context"
	"errors"
	"strings"

	"vaultcredits/internal/model"
	"vaultcredits/internal/repository"

	"gorm.io/gorm"
)

var ErrInvalidHandle = errors.New("社交账号不能为空")

// IdentityService 身份解析
// 钱包地址 -> 内部用户，首次见到即建档；社交绑定用于活动资格
type IdentityService struct {
	userRepo *repository.UserRepository
}

func NewIdentityService(db *gorm.DB) *IdentityService {
	return &IdentityService{
		userRepo: repository.NewUserRepository(db),
	}
}

// ResolveOrCreate 规范化地址并解析为用户，不存在则创建（余额 0）
func (s *IdentityService) ResolveOrCreate(ctx context.Context, wallet string) (*model.User, error) {
	normalized, err := repository.NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	return s.userRepo.GetOrCreateByWallet(ctx, normalized)
}

// LinkSocialHandle 为钱包绑定社交账号
// handle 统一去掉 @ 前缀；同一 handle 绑定其他钱包时返回 ErrHandleAlreadyLinked
func (s *IdentityService) LinkSocialHandle(ctx context.Context, wallet, handle, verifiedJSON string) (*model.User, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return nil, ErrInvalidHandle
	}

	user, err := s.ResolveOrCreate(ctx, wallet)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.LinkSocialHandle(ctx, user.ID, handle, verifiedJSON); err != nil {
		return nil, err
	}

	return s.userRepo.GetByID(ctx, user.ID)
}
