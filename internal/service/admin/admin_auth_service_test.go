package admin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/jwt"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
	"github.com/dumeirei/school-portal-backend/internal/testsupport"
)

func setupAdminAuth(t *testing.T) (*AdminAuthService, *gorm.DB) {
	db := testsupport.NewSQLiteDB(t)
	manager := jwt.NewManager(&jwt.Config{
		Secret:            "admin-test-secret",
		AccessExpireTime:  time.Hour,
		RefreshExpireTime: 24 * time.Hour,
		Issuer:            "school-portal",
	})
	return NewAdminAuthService(repository.NewAdminRepository(db), manager), db
}

func TestAdminAuthService_Login(t *testing.T) {
	svc, db := setupAdminAuth(t)
	ctx := context.Background()

	admin, err := svc.CreateAdmin(ctx, &CreateAdminRequest{Username: "finance", Password: "pay-them-all", Role: models.RoleFinanceAdmin})
	require.NoError(t, err)
	assert.Equal(t, "finance", admin.Name)

	resp, err := svc.Login(ctx, &LoginRequest{Username: "finance", Password: "pay-them-all", IP: "10.1.1.1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleFinanceAdmin, resp.Admin.Role)

	claims, err := svc.jwtManager.ParseAccessToken(resp.TokenPair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, jwt.UserTypeAdmin, claims.UserType)
	assert.Equal(t, models.RoleFinanceAdmin, claims.Role)
	assert.Equal(t, admin.ID, claims.UserID)

	var stored models.Admin
	require.NoError(t, db.First(&stored, admin.ID).Error)
	require.NotNil(t, stored.LastLoginIP)
	assert.Equal(t, "10.1.1.1", *stored.LastLoginIP)

	t.Run("密码错误", func(t *testing.T) {
		_, err := svc.Login(ctx, &LoginRequest{Username: "finance", Password: "nope"})
		assert.ErrorIs(t, err, errors.ErrPasswordError)
	})

	t.Run("用户不存在", func(t *testing.T) {
		_, err := svc.Login(ctx, &LoginRequest{Username: "ghost", Password: "pay-them-all"})
		assert.ErrorIs(t, err, errors.ErrPasswordError)
	})

	t.Run("账号禁用", func(t *testing.T) {
		require.NoError(t, db.Model(&models.Admin{}).Where("id = ?", admin.ID).Update("status", models.AdminStatusDisabled).Error)
		_, err := svc.Login(ctx, &LoginRequest{Username: "finance", Password: "pay-them-all"})
		assert.ErrorIs(t, err, errors.ErrAccountDisabled)
	})
}

func TestAdminAuthService_CreateAndChangePassword(t *testing.T) {
	svc, _ := setupAdminAuth(t)
	ctx := context.Background()

	admin, err := svc.CreateAdmin(ctx, &CreateAdminRequest{Username: "root", Password: "first-pass", Name: "Root", Role: models.RoleSuperAdmin})
	require.NoError(t, err)

	_, err = svc.CreateAdmin(ctx, &CreateAdminRequest{Username: "root", Password: "first-pass", Role: models.RoleSuperAdmin})
	assert.ErrorIs(t, err, errors.ErrAlreadyExists)
	_, err = svc.CreateAdmin(ctx, &CreateAdminRequest{Username: "x", Password: "first-pass", Role: "owner"})
	assert.ErrorIs(t, err, errors.ErrInvalidParams)
	_, err = svc.CreateAdmin(ctx, &CreateAdminRequest{Username: "y", Password: "short", Role: models.RoleSupport})
	assert.ErrorIs(t, err, errors.ErrInvalidParams)

	err = svc.ChangePassword(ctx, admin.ID, &ChangePasswordRequest{OldPassword: "wrong", NewPassword: "second-pass"})
	assert.ErrorIs(t, err, errors.ErrPasswordError)

	require.NoError(t, svc.ChangePassword(ctx, admin.ID, &ChangePasswordRequest{OldPassword: "first-pass", NewPassword: "second-pass"}))
	_, err = svc.Login(ctx, &LoginRequest{Username: "root", Password: "second-pass"})
	assert.NoError(t, err)

	info, err := svc.GetAdminInfo(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "Root", info.Name)

	_, err = svc.GetAdminInfo(ctx, 404)
	assert.ErrorIs(t, err, errors.ErrAdminNotFound)
}

func TestAdminAuthService_RefreshToken(t *testing.T) {
	svc, db := setupAdminAuth(t)
	ctx := context.Background()

	admin, err := svc.CreateAdmin(ctx, &CreateAdminRequest{Username: "ops", Password: "ops-password", Role: models.RoleSupport})
	require.NoError(t, err)
	resp, err := svc.Login(ctx, &LoginRequest{Username: "ops", Password: "ops-password"})
	require.NoError(t, err)

	t.Run("按当前角色换发", func(t *testing.T) {
		require.NoError(t, db.Model(&models.Admin{}).Where("id = ?", admin.ID).Update("role", models.RoleFinanceAdmin).Error)
		pair, err := svc.RefreshToken(ctx, resp.TokenPair.RefreshToken)
		require.NoError(t, err)
		claims, err := svc.jwtManager.ParseAccessToken(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, models.RoleFinanceAdmin, claims.Role)
	})

	t.Run("访问令牌不能刷新", func(t *testing.T) {
		_, err := svc.RefreshToken(ctx, resp.TokenPair.AccessToken)
		assert.ErrorIs(t, err, errors.ErrTokenInvalid)
	})

	t.Run("推广员令牌不能刷新管理端", func(t *testing.T) {
		pair, err := svc.jwtManager.Issue(jwt.Subject{ID: admin.ID, Type: jwt.UserTypeAffiliate})
		require.NoError(t, err)
		_, err = svc.RefreshToken(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, errors.ErrTokenInvalid)
	})

	t.Run("账号停用后拒绝", func(t *testing.T) {
		require.NoError(t, db.Model(&models.Admin{}).Where("id = ?", admin.ID).Update("status", models.AdminStatusDisabled).Error)
		_, err := svc.RefreshToken(ctx, resp.TokenPair.RefreshToken)
		assert.ErrorIs(t, err, errors.ErrAccountDisabled)
	})

	t.Run("账号不存在", func(t *testing.T) {
		pair, err := svc.jwtManager.Issue(jwt.Subject{ID: 999, Type: jwt.UserTypeAdmin, Role: models.RoleSuperAdmin})
		require.NoError(t, err)
		_, err = svc.RefreshToken(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, errors.ErrTokenInvalid)
	})
}
