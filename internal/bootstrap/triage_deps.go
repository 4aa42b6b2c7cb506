package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"triage_server/adapter/out/memory"
	"triage_server/adapter/out/persistence"
	"triage_server/config"
	"triage_server/core/agent/llm"
	"triage_server/core/agent/rag"
	"triage_server/core/port/out"
	"triage_server/core/service/routing"
	"triage_server/core/service/triage"
	"triage_server/infra/database"
	"triage_server/pkg/cache"
	"triage_server/pkg/logger"
	"triage_server/pkg/metrics"
)

const cachePrefix = "triage"

type Dependencies struct {
	Config *config.Config
	DB     *pgxpool.Pool
	SQLDB  *sqlx.DB
	Redis  *redis.Client
	Cache  *cache.RedisCache

	// Latency holds per-route API latency.
	Latency *metrics.LatencyRegistry

	// Repositories
	Store     triage.Store
	Knowledge out.KnowledgeRepository

	// Agent
	Generator out.TextGenerator
	LLMClient *llm.Client
	Retriever *rag.Retriever
	Router    *routing.Router

	// Services
	Pipeline  *triage.Pipeline
	Service   *triage.Service
	Assistant *triage.Assistant
}

// NewDependencies connects storage and builds the triage services. Without
// DATABASE_URL the seeded in-memory store is used; without REDIS_URL caching
// and the durable ingest stream are disabled.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg, Latency: metrics.NewLatencyRegistry(metrics.DefaultWindow)}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	zlog := logger.Default().Zerolog()

	// Database
	if cfg.DatabaseURL != "" {
		if cfg.AutoMigrate {
			res, err := database.MigrateUp(cfg.MigrationsDir, cfg.DatabaseURL)
			if err != nil {
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("Database schema at version %d (changed=%t)", res.Version, res.Changed)
		}

		db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		deps.DB = db
		cleanups = append(cleanups, db.Close)

		deps.SQLDB = database.NewSQLX(db)
		cleanups = append(cleanups, func() { _ = deps.SQLDB.Close() })

		deps.Store = triage.Store{
			Messages:        persistence.NewMessageAdapter(deps.SQLDB),
			Classifications: persistence.NewClassificationAdapter(deps.SQLDB),
			Teams:           persistence.NewTeamAdapter(deps.SQLDB),
		}
		deps.Knowledge = persistence.NewKnowledgeAdapter(deps.SQLDB)
		logger.Info("Using PostgreSQL storage")
	} else {
		mem := memory.NewSeededStore()
		deps.Store = triage.Store{
			Messages:        mem.Messages(),
			Classifications: mem.Classifications(),
			Teams:           mem.Teams(),
		}
		deps.Knowledge = mem.Knowledge()
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	// Redis
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.Redis = redisClient
		deps.Cache = cache.NewRedisCache(redisClient, cachePrefix)
		cleanups = append(cleanups, func() { _ = redisClient.Close() })
		logger.Info("Redis connected")
	} else {
		logger.Warn("REDIS_URL not set, webhook deduplication and knowledge caching disabled")
	}

	// AI provider
	gen, err := newGenerator(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Generator = gen
	deps.LLMClient = llm.NewClient(gen, llm.ClientConfig{Timeout: cfg.LLMTimeout(), Logger: zlog})

	var articleCache rag.ArticleCache
	if deps.Cache != nil {
		articleCache = deps.Cache
	}
	deps.Retriever = rag.NewRetriever(deps.Knowledge, articleCache, cfg.CacheKBTTL(), zlog)
	deps.Router = routing.NewRouter(deps.Store.Teams)

	deps.Pipeline = triage.NewPipeline(deps.Store, deps.LLMClient, deps.Router, zlog)
	deps.Service = triage.NewService(deps.Store, zlog)
	deps.Assistant = triage.NewAssistant(deps.Store, deps.Retriever, deps.LLMClient, deps.Router, zlog)

	logger.Info("Dependencies initialized (ai_provider=%s)", gen.Name())
	return deps, cleanup, nil
}

func newGenerator(ctx context.Context, cfg *config.Config) (out.TextGenerator, error) {
	switch cfg.AIProvider {
	case config.ProviderOpenAI:
		return llm.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.LLMModel), nil
	case config.ProviderGemini:
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return llm.NewGeminiGenerator(initCtx, cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.AIProvider)
	}
}
