// Package admin 管理端服务
package admin

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/school-portal-backend/internal/common/crypto"
	"github.com/dumeirei/school-portal-backend/internal/common/database"
	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/jwt"
	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
)

// AdminAuthService 管理员认证服务
type AdminAuthService struct {
	adminRepo  *repository.AdminRepository
	jwtManager *jwt.Manager
}

// NewAdminAuthService 创建管理员认证服务
func NewAdminAuthService(adminRepo *repository.AdminRepository, jwtManager *jwt.Manager) *AdminAuthService {
	return &AdminAuthService{
		adminRepo:  adminRepo,
		jwtManager: jwtManager,
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	IP       string `json:"-"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Admin     *AdminInfo     `json:"admin"`
	TokenPair *jwt.TokenPair `json:"token"`
}

// AdminInfo 管理员信息（不含敏感字段）
type AdminInfo struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Name     string  `json:"name"`
	Email    *string `json:"email,omitempty"`
	Role     string  `json:"role"`
}

// Login 管理员登录
func (s *AdminAuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	admin, err := s.adminRepo.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrPasswordError
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	if !crypto.VerifyPassword(req.Password, admin.PasswordHash) {
		return nil, errors.ErrPasswordError
	}
	if !admin.IsActive() {
		return nil, errors.ErrAccountDisabled
	}

	tokenPair, err := s.jwtManager.Issue(jwt.Subject{ID: admin.ID, Type: jwt.UserTypeAdmin, Role: admin.Role})
	if err != nil {
		return nil, errors.ErrInternalError.WithError(err)
	}

	// 登录信息更新失败不阻塞登录
	if err := s.adminRepo.RecordLogin(ctx, admin.ID, req.IP, time.Now()); err != nil {
		logger.Warn("update admin login info failed", logger.AdminID(admin.ID), zap.Error(err))
	}

	return &LoginResponse{Admin: toAdminInfo(admin), TokenPair: tokenPair}, nil
}

// GetAdminInfo 获取管理员信息
func (s *AdminAuthService) GetAdminInfo(ctx context.Context, adminID int64) (*AdminInfo, error) {
	admin, err := s.adminRepo.GetByID(ctx, adminID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrAdminNotFound
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	return toAdminInfo(admin), nil
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

// ChangePassword 修改密码
func (s *AdminAuthService) ChangePassword(ctx context.Context, adminID int64, req *ChangePasswordRequest) error {
	admin, err := s.adminRepo.GetByID(ctx, adminID)
	if err != nil {
		if database.IsNotFound(err) {
			return errors.ErrAdminNotFound
		}
		return errors.ErrStoreFailure.WithError(err)
	}

	if !crypto.VerifyPassword(req.OldPassword, admin.PasswordHash) {
		return errors.ErrPasswordError.WithMessage("Current password is incorrect")
	}

	passwordHash, err := crypto.HashPassword(req.NewPassword)
	if err != nil {
		return errors.ErrInternalError.WithError(err)
	}
	if err := s.adminRepo.UpdatePassword(ctx, adminID, passwordHash); err != nil {
		if database.IsNotFound(err) {
			return errors.ErrAdminNotFound
		}
		return errors.ErrStoreFailure.WithError(err)
	}
	return nil
}

// RefreshToken 刷新令牌
// 按管理员当前状态与角色重新签发，停用或降级在刷新时即生效
func (s *AdminAuthService) RefreshToken(ctx context.Context, refreshToken string) (*jwt.TokenPair, error) {
	claims, err := s.jwtManager.ParseRefreshToken(refreshToken)
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.ErrTokenExpired
		}
		return nil, errors.ErrTokenInvalid.WithError(err)
	}
	if claims.UserType != jwt.UserTypeAdmin {
		return nil, errors.ErrTokenInvalid
	}

	admin, err := s.adminRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrTokenInvalid
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	if !admin.IsActive() {
		return nil, errors.ErrAccountDisabled
	}

	pair, err := s.jwtManager.Issue(jwt.Subject{ID: admin.ID, Type: jwt.UserTypeAdmin, Role: admin.Role})
	if err != nil {
		return nil, errors.ErrInternalError.WithError(err)
	}
	return pair, nil
}

// CreateAdminRequest 创建管理员
type CreateAdminRequest struct {
	Username string
	Password string
	Name     string
	Email    string
	Role     string
}

// CreateAdmin 创建管理员，用户名已存在时返回 ErrAlreadyExists
func (s *AdminAuthService) CreateAdmin(ctx context.Context, req *CreateAdminRequest) (*models.Admin, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || len(req.Password) < 8 {
		return nil, errors.ErrInvalidParams.WithMessage("Username is required and password must be at least 8 characters")
	}
	if !models.ValidAdminRole(req.Role) {
		return nil, errors.ErrInvalidParams.WithMessage("Invalid role")
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return nil, errors.ErrInternalError.WithError(err)
	}
	admin := &models.Admin{
		Username:     username,
		PasswordHash: hash,
		Name:         strings.TrimSpace(req.Name),
		Role:         req.Role,
		Status:       models.AdminStatusActive,
	}
	if admin.Name == "" {
		admin.Name = username
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		admin.Email = &email
	}
	if err := s.adminRepo.Create(ctx, admin); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errors.ErrAlreadyExists.WithMessage("Admin username already exists")
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	logger.Info("admin created", logger.AdminID(admin.ID), zap.String("role", admin.Role))
	return admin, nil
}

func toAdminInfo(admin *models.Admin) *AdminInfo {
	return &AdminInfo{
		ID:       admin.ID,
		Username: admin.Username,
		Name:     admin.Name,
		Email:    admin.Email,
		Role:     admin.Role,
	}
}
