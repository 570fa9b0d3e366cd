// Package referral 推广访问采集与佣金归因
package referral

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/school-portal-backend/internal/common/database"
	"github.com/dumeirei/school-portal-backend/internal/common/errors"
	"github.com/dumeirei/school-portal-backend/internal/common/logger"
	"github.com/dumeirei/school-portal-backend/internal/common/metrics"
	"github.com/dumeirei/school-portal-backend/internal/common/utils"
	"github.com/dumeirei/school-portal-backend/internal/models"
	"github.com/dumeirei/school-portal-backend/internal/repository"
)

// 访问采集结果
const (
	VisitResultRecorded  = "recorded"
	VisitResultDuplicate = "duplicate"
	VisitResultInvalid   = "invalid_code"
)

// Config 归因配置
type Config struct {
	AttributionWindow time.Duration
	DedupByIP         bool
	LockTTL           time.Duration
}

// DefaultConfig 90 天窗口，按 IP 去重
func DefaultConfig() Config {
	return Config{AttributionWindow: 90 * 24 * time.Hour, DedupByIP: true, LockTTL: 30 * time.Second}
}

// CaptureService 推广访问采集
type CaptureService struct {
	affiliateRepo *repository.AffiliateRepository
	visitRepo     *repository.ReferralVisitRepository
	config        Config
	metrics       *metrics.Metrics
	now           func() time.Time
}

// NewCaptureService 创建采集服务
func NewCaptureService(
	affiliateRepo *repository.AffiliateRepository,
	visitRepo *repository.ReferralVisitRepository,
	config Config,
	m *metrics.Metrics,
) *CaptureService {
	return &CaptureService{
		affiliateRepo: affiliateRepo,
		visitRepo:     visitRepo,
		config:        config,
		metrics:       m,
		now:           time.Now,
	}
}

// VisitInput 访问信息
type VisitInput struct {
	Code        string
	IP          string
	UserAgent   string
	LandingPath string
}

// RecordResult 采集结果
type RecordResult struct {
	VisitID       int64  `json:"visit_id"`
	Duplicate     bool   `json:"duplicate"`
	ReferralCode  string `json:"referral_code"`
	AffiliateName string `json:"affiliate_name"`
}

// RecordVisit 记录一次推广链接访问
// 同一推广员、同一 IP 在归因窗口内已有未转化访问时不重复写入
func (s *CaptureService) RecordVisit(ctx context.Context, in *VisitInput) (*RecordResult, error) {
	affiliate, err := s.lookupApproved(ctx, in.Code)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidReferralCode) {
			s.metrics.RecordReferralVisit(VisitResultInvalid)
		}
		return nil, err
	}

	result := &RecordResult{ReferralCode: affiliate.Username, AffiliateName: affiliate.FullName}

	if s.config.DedupByIP && in.IP != "" {
		existing, err := s.visitRepo.FindPendingByIP(ctx, affiliate.ID, in.IP, s.now().Add(-s.config.AttributionWindow))
		if err == nil {
			result.VisitID = existing.ID
			result.Duplicate = true
			s.metrics.RecordReferralVisit(VisitResultDuplicate)
			return result, nil
		}
		if !database.IsNotFound(err) {
			return nil, errors.ErrStoreFailure.WithError(err)
		}
	}

	visit := &models.ReferralVisit{
		AffiliateID:  affiliate.ID,
		ReferralCode: affiliate.Username,
		VisitorIP:    in.IP,
		UserAgent:    optional(truncate(in.UserAgent, 512)),
		LandingPath:  optional(truncate(in.LandingPath, 255)),
		Status:       models.VisitStatusPending,
		CreatedAt:    s.now(),
	}
	if err := s.visitRepo.Create(ctx, visit); err != nil {
		return nil, errors.ErrStoreFailure.WithError(err)
	}

	s.metrics.RecordReferralVisit(VisitResultRecorded)
	logger.Debug("referral visit recorded",
		logger.AffiliateID(affiliate.ID),
		logger.VisitID(visit.ID),
		logger.IP(in.IP),
	)

	result.VisitID = visit.ID
	return result, nil
}

// ResolvedCode 推广码解析结果
type ResolvedCode struct {
	ReferralCode  string `json:"referral_code"`
	AffiliateName string `json:"affiliate_name"`
}

// ResolveCode 落地页展示推广员名称
func (s *CaptureService) ResolveCode(ctx context.Context, code string) (*ResolvedCode, error) {
	affiliate, err := s.lookupApproved(ctx, code)
	if err != nil {
		return nil, err
	}
	return &ResolvedCode{ReferralCode: affiliate.Username, AffiliateName: affiliate.FullName}, nil
}

func (s *CaptureService) lookupApproved(ctx context.Context, code string) (*models.Affiliate, error) {
	code = utils.NormalizeReferralCode(code)
	if !utils.ValidUsername(code) {
		return nil, errors.ErrInvalidReferralCode
	}
	affiliate, err := s.affiliateRepo.GetApprovedByUsername(ctx, code)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ErrInvalidReferralCode
		}
		logger.Error("lookup affiliate failed", logger.ReferralCode(code), zap.Error(err))
		return nil, errors.ErrStoreFailure.WithError(err)
	}
	return affiliate, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
