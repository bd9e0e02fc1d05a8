package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-budget/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-budget/internal/budget"
	"github.com/odyssey-erp/odyssey-budget/internal/consol"
	"github.com/odyssey-erp/odyssey-budget/internal/consol/fx"
	"github.com/odyssey-erp/odyssey-budget/internal/dimensions"
	jobmetrics "github.com/odyssey-erp/odyssey-budget/internal/jobs"
	"github.com/odyssey-erp/odyssey-budget/internal/masterdata/branches"
	"github.com/odyssey-erp/odyssey-budget/internal/masterdata/companies"
	"github.com/odyssey-erp/odyssey-budget/internal/observability"
	"github.com/odyssey-erp/odyssey-budget/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-budget/internal/platform/db"
	"github.com/odyssey-erp/odyssey-budget/internal/shared"
)

// Services holds the wired engines shared by the server, the worker and the CLI.
type Services struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics

	Budgets     *budget.Repository
	Ledger      *ledger.Repository
	Calendar    *periods.Service
	Companies   *companies.Service
	Branches    *branches.Service
	Quotes      *fx.Repository
	Keys        *shared.IdempotencyStore
	Approvals   *shared.ApprovalRecorder
	Engine      *budget.Engine
	Gate        *budget.Gate
	Resolver    *budget.Resolver
	Validator   *budget.DefinitionValidator
	Builder     *consol.Builder
	ReportCache *consol.Cache
	Reports     *consol.CachedBuilder
	JobMetrics  *jobmetrics.Metrics
}

// NewServices connects to Postgres and Redis and wires every engine. A Redis
// ping failure is logged and tolerated; the lock then fails per request.
func NewServices(ctx context.Context, cfg *Config, logger *slog.Logger) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	s := &Services{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Redis:   client,
		Metrics: observability.NewMetrics(),
	}
	if err := s.wire(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) wire() error {
	cfg, logger, pool := s.Config, s.Logger, s.Pool
	reg := s.Metrics.Registerer()

	budgetMetrics, err := budget.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("register budget metrics: %w", err)
	}
	s.JobMetrics = jobmetrics.NewMetrics(reg)

	s.Budgets = budget.NewRepository(pool)
	s.Ledger = ledger.NewRepository(pool)
	s.Calendar = periods.NewService(periods.NewRepository(pool))
	s.Companies = companies.NewService(companies.NewRepository(pool))
	s.Branches = branches.NewService(branches.NewRepository(pool))
	s.Quotes = fx.NewRepository(pool)
	s.Keys = shared.NewIdempotencyStore(pool)
	s.Approvals = shared.NewApprovalRecorder(pool, logger)

	locale, err := language.Parse(cfg.BudgetLocale)
	if err != nil {
		logger.Warn("unknown budget locale", slog.String("locale", cfg.BudgetLocale), slog.Any("error", err))
		locale = language.English
	}

	s.Engine = budget.NewEngine(s.Budgets, s.Ledger, s.Calendar,
		budget.WithCommitments(s.Budgets),
		budget.WithItemUsage(s.Budgets),
		budget.WithDimensions(dimensions.NewValidator(dimensions.DefaultRegistry(), dimensions.NewPGSource(pool), logger)),
		budget.WithCurrencies(s.Companies),
		budget.WithMetrics(budgetMetrics),
		budget.WithLocale(locale),
		budget.WithLogger(logger),
	)
	s.Gate = budget.NewGate(s.Engine, budget.NewRedisLocker(s.Redis, cfg.BudgetLockTTL, cfg.BudgetLockWait),
		budget.WithOverrideRecorder(s.Approvals),
		budget.WithKeyStore(s.Keys),
		budget.WithRetries(cfg.BudgetCommitRetries),
		budget.WithGateLogger(logger),
	)
	s.Resolver = budget.NewResolver(s.Budgets, s.Ledger, s.Budgets, s.Calendar)
	s.Validator = budget.NewDefinitionValidator(s.Budgets, s.Ledger, s.Branches)

	s.Builder = consol.NewBuilder(s.Ledger, s.Companies, s.Branches, s.Calendar,
		consol.WithBudgets(s.Resolver),
		consol.WithQuotes(s.Quotes),
		consol.WithConcurrency(cfg.ReportConcurrency),
		consol.WithMaxDepth(cfg.TreeMaxDepth),
		consol.WithPresentationCurrency(cfg.PresentationCurrency),
		consol.WithLogger(logger),
	)
	s.ReportCache = consol.NewCache(s.Redis, cfg.ReportCacheTTL)
	s.Reports = consol.NewCachedBuilder(s.Builder, s.ReportCache)
	return nil
}

// RedisOpts returns the asynq connection settings for the configured Redis.
func (s *Services) RedisOpts() asynq.RedisClientOpt {
	return RedisOpts(s.Config)
}

// RedisOpts maps the configuration onto asynq's Redis options.
func RedisOpts(cfg *Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

// Close releases the pool and the Redis client.
func (s *Services) Close() {
	if s == nil {
		return
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.Logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}
