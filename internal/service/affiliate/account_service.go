// Package affiliate 推广员账号、看板与提现
package affiliate

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/crypto"
	"github.com/dumeirei/school-portal-backend/internal/common/database"
	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/jwt"
	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/common/qrcode"
	"github.com/dumeirei/school-portal-backend/internal/common/utils"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
)

const recentVisitLimit = 10

// AccountConfig 推广员账号配置
type AccountConfig struct {
	DefaultRate decimal.Decimal
	PublicURL   string
	LinkPath    string
}

// AccountService 推广员账号服务
type AccountService struct {
	db             *gorm.DB
	affiliateRepo  *repository.AffiliateRepository
	visitRepo      *repository.ReferralVisitRepository
	withdrawalRepo *repository.WithdrawalRepository
	jwtManager     *jwt.Manager
	aes            *crypto.AES
	qr             *qrcode.Generator
	config         AccountConfig
}

// NewAccountService 创建推广员账号服务
func NewAccountService(
	db *gorm.DB,
	affiliateRepo *repository.AffiliateRepository,
	visitRepo *repository.ReferralVisitRepository,
	withdrawalRepo *repository.WithdrawalRepository,
	jwtManager *jwt.Manager,
	aes *crypto.AES,
	config AccountConfig,
) *AccountService {
	return &AccountService{
		db:             db,
		affiliateRepo:  affiliateRepo,
		visitRepo:      visitRepo,
		withdrawalRepo: withdrawalRepo,
		jwtManager:     jwtManager,
		aes:            aes,
		qr:             qrcode.NewGenerator(qrcode.WithSize(320), qrcode.WithHighRecovery()),
		config:         config,
	}
}

// RegisterRequest 注册请求，用户名即推广码
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	FullName string `json:"full_name" binding:"required,max=100"`
	Phone    string `json:"phone"`
}

// Register 注册推广员，审核通过前推广码不生效
func (s *AccountService) Register(ctx context.Context, req *RegisterRequest) (*models.Affiliate, error) {
	username := utils.NormalizeReferralCode(req.Username)
	if !utils.ValidUsername(username) {
		return nil, errors.ErrInvalidParams.WithMessage("Username must be 3-30 lowercase letters, digits or underscores")
	}
	email := utils.NormalizeEmail(req.Email)
	phone := strings.TrimSpace(req.Phone)
	if phone != "" && !utils.ValidatePhone(phone) {
		return nil, errors.ErrInvalidParams.WithMessage("Invalid phone number")
	}

	if exists, err := s.affiliateRepo.ExistsByUsername(ctx, username); err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	} else if exists {
		return nil, errors.ErrUsernameTaken
	}
	if exists, err := s.affiliateRepo.ExistsByEmail(ctx, email); err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	} else if exists {
		return nil, errors.ErrEmailTaken
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return nil, errors.ErrInternalError.WithError(err)
	}

	affiliate := &models.Affiliate{
		Username:       username,
		Email:          email,
		PasswordHash:   hash,
		FullName:       strings.TrimSpace(req.FullName),
		CommissionRate: s.config.DefaultRate,
		Status:         models.AffiliateStatusPending,
	}
	if phone != "" {
		affiliate.Phone = &phone
	}

	if err := s.affiliateRepo.Create(ctx, affiliate); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errors.ErrUsernameTaken
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	logger.Info("affiliate registered",
		logger.AffiliateID(affiliate.ID),
		logger.ReferralCode(affiliate.Username),
		zap.String("email", crypto.MaskEmail(affiliate.Email)),
	)
	return affiliate, nil
}

// LoginRequest 登录请求，可使用用户名或邮箱
type LoginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     *jwt.TokenPair    `json:"token"`
	Affiliate *models.Affiliate `json:"affiliate"`
}

// Login 推广员登录；待审核可以登录查看状态，停用账号拒绝
func (s *AccountService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	login := strings.TrimSpace(req.Login)
	var (
		affiliate *models.Affiliate
		err       error
	)
	if strings.Contains(login, "@") {
		affiliate, err = s.affiliateRepo.GetByEmail(ctx, utils.NormalizeEmail(login))
	} else {
		affiliate, err = s.affiliateRepo.GetByUsername(ctx, utils.NormalizeReferralCode(login))
	}
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrPasswordError
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	if !crypto.VerifyPassword(req.Password, affiliate.PasswordHash) {
		return nil, errors.ErrPasswordError
	}
	if affiliate.Status == models.AffiliateStatusSuspended {
		return nil, errors.ErrAccountDisabled
	}

	token, err := s.jwtManager.Issue(jwt.Subject{ID: affiliate.ID, Type: jwt.UserTypeAffiliate})
	if err != nil {
		return nil, errors.ErrInternalError.WithError(err)
	}

	if err := s.affiliateRepo.UpdateProfile(ctx, affiliate.ID, map[string]interface{}{"last_login_at": time.Now()}); err != nil {
		logger.Warn("update affiliate last login failed", logger.AffiliateID(affiliate.ID), zap.Error(err))
	}
	return &LoginResponse{Token: token, Affiliate: affiliate}, nil
}

// GetProfile 获取推广员资料
func (s *AccountService) GetProfile(ctx context.Context, affiliateID int64) (*models.Affiliate, error) {
	affiliate, err := s.affiliateRepo.GetByID(ctx, affiliateID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrAffiliateNotFound
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	return affiliate, nil
}

// BankRequest 收款账户
type BankRequest struct {
	BankName      string `json:"bank_name" binding:"required,max=100"`
	AccountName   string `json:"account_name" binding:"required,max=100"`
	AccountNumber string `json:"account_number" binding:"required,numeric,len=10"`
}

// BankInfo 收款账户（账号脱敏）
type BankInfo struct {
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
}

// UpdateBank 更新收款账户，账号加密存储
func (s *AccountService) UpdateBank(ctx context.Context, affiliateID int64, req *BankRequest) (*BankInfo, error) {
	encrypted, err := s.aes.Encrypt(req.AccountNumber)
	if err != nil {
		return nil, errors.ErrInternalError.WithError(err)
	}
	err = s.affiliateRepo.UpdateProfile(ctx, affiliateID, map[string]interface{}{
		"bank_name":      strings.TrimSpace(req.BankName),
		"account_name":   strings.TrimSpace(req.AccountName),
		"account_number": encrypted,
	})
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrAffiliateNotFound
		}
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	return &BankInfo{
		BankName:      strings.TrimSpace(req.BankName),
		AccountName:   strings.TrimSpace(req.AccountName),
		AccountNumber: crypto.MaskBankAccount(req.AccountNumber),
	}, nil
}

// BankInfoFor 解密并脱敏推广员收款账户
func (s *AccountService) BankInfoFor(a *models.Affiliate) *BankInfo {
	if a.AccountNumber == nil {
		return nil
	}
	info := &BankInfo{BankName: utils.SafeString(a.BankName), AccountName: utils.SafeString(a.AccountName)}
	if plain, err := s.aes.Decrypt(*a.AccountNumber); err == nil {
		info.AccountNumber = crypto.MaskBankAccount(plain)
	}
	return info
}

// Dashboard 推广员看板
type Dashboard struct {
	Affiliate        *models.Affiliate       `json:"affiliate"`
	Bank             *BankInfo               `json:"bank,omitempty"`
	AvailableBalance decimal.Decimal         `json:"available_balance"`
	Outstanding      decimal.Decimal         `json:"outstanding_withdrawals"`
	Visits           *repository.VisitCounts `json:"visits"`
	RecentVisits     []*models.ReferralVisit `json:"recent_visits"`
	InviteLink       string                  `json:"invite_link"`
}

// GetDashboard 收益、访问统计与最近访问
// 可提现余额 = 待结算收益 - 处理中的提现
func (s *AccountService) GetDashboard(ctx context.Context, affiliateID int64) (*Dashboard, error) {
	affiliate, err := s.GetProfile(ctx, affiliateID)
	if err != nil {
		return nil, err
	}

	outstanding, err := s.withdrawalRepo.SumOutstanding(s.db.WithContext(ctx), affiliateID)
	if err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	counts, err := s.visitRepo.CountByAffiliate(ctx, affiliateID)
	if err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	recent, _, err := s.visitRepo.List(ctx, 0, recentVisitLimit, map[string]interface{}{"affiliate_id": affiliateID})
	if err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	return &Dashboard{
		Affiliate:        affiliate,
		Bank:             s.BankInfoFor(affiliate),
		AvailableBalance: decimal.Max(affiliate.PendingEarnings.Sub(outstanding), decimal.Zero),
		Outstanding:      outstanding,
		Visits:           counts,
		RecentVisits:     recent,
		InviteLink:       qrcode.InviteLink(s.config.PublicURL, s.config.LinkPath, affiliate.Username),
	}, nil
}

// ListVisits 推广员自己的访问记录
func (s *AccountService) ListVisits(ctx context.Context, affiliateID int64, offset, limit int, status string) ([]*models.ReferralVisit, int64, error) {
	visits, total, err := s.visitRepo.List(ctx, offset, limit, map[string]interface{}{
		"affiliate_id": affiliateID,
		"status":       status,
	})
	if err != nil {
		return nil, 0, errors.ErrStoreFailure.WithError(err)
	}
	return visits, total, nil
}

// Invite 推广链接与二维码
type Invite struct {
	ReferralCode string `json:"referral_code"`
	Link         string `json:"link"`
	QRCode       string `json:"qr_code"` // data URL
	Active       bool   `json:"active"`
}

// GetInvite 生成推广链接和二维码
func (s *AccountService) GetInvite(ctx context.Context, affiliateID int64) (*Invite, error) {
	affiliate, err := s.GetProfile(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	link := qrcode.InviteLink(s.config.PublicURL, s.config.LinkPath, affiliate.Username)
	dataURL, err := s.qr.GenerateDataURL(link)
	if err != nil {
		return nil, errors.ErrInternalError.WithError(err)
	}
	return &Invite{
		ReferralCode: affiliate.Username,
		Link:         link,
		QRCode:       dataURL,
		Active:       affiliate.IsApproved(),
	}, nil
}
