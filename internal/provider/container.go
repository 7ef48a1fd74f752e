package provider

import (
	"github.com/referral-next/internal/cache"
	"github.com/referral-next/internal/config"
	"github.com/referral-next/internal/logger"
	"github.com/referral-next/internal/models"
	"github.com/referral-next/internal/queue"
	"github.com/referral-next/internal/repository"
	"github.com/referral-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	UserRepo     repository.UserRepository
	ReferralRepo repository.ReferralRepository

	// Services
	ReferralService      *service.ReferralService
	ReferralStatsService *service.ReferralStatsService
	ReferralQueryService *service.ReferralQueryService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.UserRepo = repository.NewUserRepository(db)
	c.ReferralRepo = repository.NewReferralRepository(db)
}

func (c *Container) initServices() {
	setting := service.NewReferralSettingFromConfig(c.Config.Referral)
	c.ReferralStatsService = service.NewReferralStatsService(c.ReferralRepo, c.Config.Referral.StatsCacheTTLSeconds)
	c.ReferralService = service.NewReferralService(c.ReferralRepo, c.UserRepo, setting, c.ReferralStatsService)
	c.ReferralQueryService = service.NewReferralQueryService(c.ReferralRepo, c.UserRepo, c.ReferralService, c.ReferralStatsService)
}
