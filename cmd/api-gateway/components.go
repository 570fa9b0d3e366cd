package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/school-portal-backend/internal/common/cache"
	"github.com/dumeirei/school-portal-backend/internal/common/config"
	"github.com/dumeirei/school-portal-backend/internal/common/crypto"
	"github.com/dumeirei/school-portal-backend/internal/common/jwt"
	"github.com/dumeirei/school-portal-backend/internal/common/metrics"
	"github.com/dumeirei/school-portal-backend/internal/repository"
	"github.com/dumeirei/school-portal-backend/internal/scheduler"
	adminService "github.com/dumeirei/school-portal-backend/internal/service/admin"
	affiliateService "github.com/dumeirei/school-portal-backend/internal/service/affiliate"
	contactService "github.com/dumeirei/school-portal-backend/internal/service/contact"
	"github.com/dumeirei/school-portal-backend/internal/service/notify"
	paymentService "github.com/dumeirei/school-portal-backend/internal/service/payment"
	pricingService "github.com/dumeirei/school-portal-backend/internal/service/pricing"
	referralService "github.com/dumeirei/school-portal-backend/internal/service/referral"
	signupService "github.com/dumeirei/school-portal-backend/internal/service/signup"
	"github.com/dumeirei/school-portal-backend/pkg/kafka"
	"github.com/dumeirei/school-portal-backend/pkg/mqtt"
	"github.com/dumeirei/school-portal-backend/pkg/oss"
	"github.com/dumeirei/school-portal-backend/pkg/paystack"
	"github.com/dumeirei/school-portal-backend/pkg/sms"
)

// components 进程内共享的客户端与服务
type components struct {
	jwtManager *jwt.Manager
	metrics    *metrics.Metrics
	notifier   *notify.Dispatcher
	opLogRepo  *repository.OperationLogRepository

	pricing     *pricingService.PricingService
	capture     *referralService.CaptureService
	attribution *referralService.AttributionService
	signups     *signupService.SignupService
	renewals    *signupService.RenewalService
	payments    *paymentService.PaymentService
	contacts    *contactService.ContactService
	accounts    *affiliateService.AccountService
	withdrawals *affiliateService.WithdrawService
	adminAuth   *adminService.AdminAuthService
	affiliates  *adminService.AffiliateAdminService
	dashboard   *adminService.DashboardService
	opLogs      *adminService.OperationLogService

	closers []func()
}

// newComponents 创建外部客户端与业务服务；m 可为 nil，redisClient 可为 nil
func newComponents(cfg *config.Config, log *zap.Logger, db *gorm.DB, redisClient *redis.Client, m *metrics.Metrics) (*components, error) {
	c := &components{metrics: m}

	c.jwtManager = jwt.NewManager(&jwt.Config{
		Secret:            cfg.JWT.Secret,
		AccessExpireTime:  cfg.JWT.AccessTokenDuration(),
		RefreshExpireTime: cfg.JWT.RefreshTokenDuration(),
		Issuer:            cfg.JWT.Issuer,
	})

	aes, err := crypto.NewAES(cfg.Crypto.AESKey)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}

	backends, err := c.notifyBackends(cfg, log)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.notifier = notify.NewDispatcher(log, m, backends...)
	// 先等待通知发送完，再关闭各通道
	c.closers = append([]func(){c.notifier.Close}, c.closers...)

	uploader, err := newUploader(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	gateway := paystack.NewClient(&paystack.Config{
		BaseURL:     cfg.Paystack.BaseURL,
		SecretKey:   cfg.Paystack.SecretKey,
		CallbackURL: cfg.Paystack.CallbackURL,
		Currency:    cfg.Paystack.Currency,
		Timeout:     cfg.Paystack.TimeoutDuration(),
	})

	var locker *cache.Locker
	if redisClient != nil {
		locker = cache.NewLocker(redisClient)
	}

	// 仓储
	adminRepo := repository.NewAdminRepository(db)
	affiliateRepo := repository.NewAffiliateRepository(db)
	visitRepo := repository.NewReferralVisitRepository(db)
	withdrawalRepo := repository.NewWithdrawalRepository(db)
	signupRepo := repository.NewSchoolSignupRepository(db)
	renewalRepo := repository.NewRenewalRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	contactRepo := repository.NewContactRepository(db)
	c.opLogRepo = repository.NewOperationLogRepository(db)

	// 服务
	referralCfg := referralService.DefaultConfig()
	if cfg.Business.Referral.AttributionWindowDays > 0 {
		referralCfg.AttributionWindow = cfg.Business.Referral.AttributionWindow()
	}
	referralCfg.DedupByIP = cfg.Business.Referral.DedupByIP

	pricingCfg := pricingService.DefaultConfig()
	if cfg.Business.Pricing.VolumeThreshold > 0 {
		pricingCfg.VolumeThreshold = cfg.Business.Pricing.VolumeThreshold
		pricingCfg.VolumeDiscountPct = decimal.NewFromFloat(cfg.Business.Pricing.VolumeDiscountPct)
	}

	c.pricing = pricingService.NewPricingService(repository.NewPricingRepository(db), redisClient, pricingCfg)
	c.capture = referralService.NewCaptureService(affiliateRepo, visitRepo, referralCfg, m)
	c.attribution = referralService.NewAttributionService(db, signupRepo, visitRepo, affiliateRepo, locker, c.notifier, m, referralCfg)
	c.signups = signupService.NewSignupService(db, signupRepo, c.pricing, c.notifier)
	c.renewals = signupService.NewRenewalService(db, renewalRepo, c.pricing)
	c.payments = paymentService.NewPaymentService(db, paymentRepo, signupRepo, renewalRepo, gateway, c.attribution, uploader, redisClient, c.notifier, m)
	if cfg.OSS.MaxFileSize > 0 {
		c.payments.SetMaxFileSize(cfg.OSS.MaxFileSize)
	}
	c.contacts = contactService.NewContactService(contactRepo, c.notifier)

	c.accounts = affiliateService.NewAccountService(db, affiliateRepo, visitRepo, withdrawalRepo, c.jwtManager, aes, affiliateService.AccountConfig{
		DefaultRate: decimal.NewFromFloat(cfg.Business.Commission.DefaultRate),
		PublicURL:   cfg.Business.Portal.PublicURL,
		LinkPath:    cfg.Business.Portal.AffiliateLinkPath,
	})
	c.withdrawals = affiliateService.NewWithdrawService(db, affiliateRepo, withdrawalRepo, c.notifier, m)
	c.withdrawals.SetMinAmount(decimal.NewFromFloat(cfg.Business.Withdrawal.MinAmount))

	c.adminAuth = adminService.NewAdminAuthService(adminRepo, c.jwtManager)
	c.affiliates = adminService.NewAffiliateAdminService(affiliateRepo, visitRepo, aes).WithNotifier(c.notifier)
	c.dashboard = adminService.NewDashboardService(signupRepo, affiliateRepo, visitRepo, withdrawalRepo, paymentRepo, contactRepo)
	c.opLogs = adminService.NewOperationLogService(c.opLogRepo)

	return c, nil
}

// notifyBackends 按配置启用 MQTT、Kafka 与短信通道
func (c *components) notifyBackends(cfg *config.Config, log *zap.Logger) ([]notify.Backend, error) {
	var backends []notify.Backend

	if cfg.MQTT.Enabled {
		dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := mqtt.Dial(dialCtx, &mqtt.Config{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientIDPrefix + "api",
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			QoS:            cfg.MQTT.QoS,
			KeepAlive:      cfg.MQTT.KeepAlive,
			AutoReconnect:  cfg.MQTT.AutoReconnect,
			ConnectTimeout: cfg.MQTT.ConnectTimeout,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
		}, log)
		cancel()
		if err != nil {
			// 通知通道不可用不阻止启动
			log.Warn("mqtt unavailable, notifications disabled on this channel", zap.Error(err))
		} else {
			backends = append(backends, notify.NewMQTTBackend(client))
			c.closers = append(c.closers, client.Close)
		}
	}

	if cfg.Kafka.Enabled {
		publisher, err := kafka.NewPublisher(&kafka.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, log)
		if err != nil {
			return nil, fmt.Errorf("init kafka publisher: %w", err)
		}
		backends = append(backends, notify.NewKafkaBackend(publisher))
		c.closers = append(c.closers, func() {
			if err := publisher.Close(); err != nil {
				log.Warn("close kafka publisher failed", zap.Error(err))
			}
		})
	}

	switch cfg.SMS.Provider {
	case "aliyun":
		sender, err := sms.NewAliyunSender(&sms.AliyunConfig{
			AccessKeyID:     cfg.SMS.AccessKeyID,
			AccessKeySecret: cfg.SMS.AccessKeySecret,
			SignName:        cfg.SMS.SignName,
			RegionID:        cfg.SMS.RegionID,
			Templates:       cfg.SMS.Templates,
		})
		if err != nil {
			return nil, fmt.Errorf("init sms sender: %w", err)
		}
		backends = append(backends, notify.NewSMSBackend(sender))
	case "", "none":
	default:
		backends = append(backends, notify.NewSMSBackend(sms.NewMockSender()))
	}

	return backends, nil
}

// newUploader 生产环境使用阿里云 OSS，其余使用内存实现
func newUploader(cfg *config.Config) (oss.Uploader, error) {
	if cfg.OSS.Provider != "aliyun" || cfg.OSS.AccessKeyID == "" {
		return oss.NewMockUploader(), nil
	}
	uploader, err := oss.NewAliyunUploader(&oss.AliyunConfig{
		Endpoint:        cfg.OSS.Endpoint,
		AccessKeyID:     cfg.OSS.AccessKeyID,
		AccessKeySecret: cfg.OSS.AccessKeySecret,
		BucketName:      cfg.OSS.Bucket,
		Domain:          cfg.OSS.CustomDomain,
		BasePath:        cfg.OSS.UploadDir,
	})
	if err != nil {
		return nil, fmt.Errorf("init oss uploader: %w", err)
	}
	return uploader, nil
}

// ensureSeedData 写入缺失的默认套餐
func (c *components) ensureSeedData(ctx context.Context) error {
	return c.pricing.EnsureDefaultPlans(ctx)
}

// newScheduler 注册后台任务
func (c *components) newScheduler() *scheduler.Scheduler {
	s := scheduler.NewScheduler(c.metrics)
	scheduler.NewTaskHandler(c.payments, c.attribution, c.affiliates).WithLogPruner(c.opLogs).Register(s)
	return s
}

// Close 按注册顺序释放资源
func (c *components) Close() {
	for _, fn := range c.closers {
		fn()
	}
	c.closers = nil
}
