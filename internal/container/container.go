package container

import (
	"context"
	"fmt"
	"time"

	"aliexpress/scraper/internal/client"
	"aliexpress/scraper/internal/config"
	"aliexpress/scraper/internal/domain"
	"aliexpress/scraper/internal/metrics"
	"aliexpress/scraper/internal/normalize"
	"aliexpress/scraper/internal/proxy"
	"aliexpress/scraper/internal/repository"
	"aliexpress/scraper/internal/service"
	"aliexpress/scraper/internal/state"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Container holds all initialized components
type Container struct {
	Config     *config.Config
	Executor   proxy.Client
	Metrics    *metrics.Metrics
	Repository repository.ResultRepository
	Registry   state.RunRegistry

	Service *service.Service

	db    *pgxpool.Pool
	redis *redis.Client
}

// New creates a new container with all dependencies initialized
func New(cfg *config.Config) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	container := &Container{
		Config:  cfg,
		Metrics: metrics.New(),
	}

	executor := proxy.NewClient(cfg.Proxy, proxy.DefaultAntiBotMatcher(), container.Metrics)
	container.Executor = executor

	if cfg.Database.Enabled {
		db, err := pgxpool.New(context.Background(),
			fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
				cfg.Database.Host,
				cfg.Database.Port,
				cfg.Database.User,
				cfg.Database.Password,
				cfg.Database.Name,
			))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to result store: %w", err)
		}
		container.db = db
		container.Repository = repository.NewResultRepository(db)
		log.Info("✅ Connected to result store")
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.Database,
		})
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		container.redis = rdb
		container.Registry = state.NewRedisRunRegistry(rdb)
		log.Info("✅ Connected to run registry")
	}

	normalizer := normalize.New()
	search := client.NewSearchClient(cfg.Scrape, cfg.Proxy.Render, executor)
	sellers := client.NewSellerClient(executor, cfg.Scrape.Country, cfg.Scrape.LocaleCookie, cfg.Proxy.Render)
	products := client.NewProductClient(executor, cfg.Scrape.Country, cfg.Scrape.LocaleCookie, cfg.Proxy.Render)

	container.Service = service.NewService(cfg.Scrape, search, sellers, products, normalizer, container.Metrics)

	return container, nil
}

// Run executes one full scrape for the configured query and hands the result
// to the optional sinks.
func (c *Container) Run(ctx context.Context) (*domain.ScrapeResult, error) {
	q := domain.Query{
		Text:         c.Config.Scrape.Query,
		Country:      c.Config.Scrape.Country,
		LocaleCookie: c.Config.Scrape.LocaleCookie,
	}
	if q.Text == "" {
		return nil, &config.ConfigurationError{Field: "scrape.query", Reason: "cannot be empty"}
	}

	if timeout := c.Config.Scrape.RunTimeoutSeconds; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}

	c.setStatus(ctx, q.Text, state.StatusRunning)

	result, err := c.Service.Scrape(ctx, q)
	if err != nil {
		c.setStatus(context.Background(), q.Text, state.StatusFailed)
		return nil, err
	}

	if c.Repository != nil {
		if err := c.Repository.SaveResult(context.Background(), result); err != nil {
			log.Errorf("❌ Failed to persist result for %q: %v", q.Text, err)
		}
	}
	c.setStatus(context.Background(), q.Text, state.StatusCompleted)

	return result, nil
}

func (c *Container) setStatus(ctx context.Context, query, status string) {
	if c.Registry == nil {
		return
	}
	if err := c.Registry.SetRunStatus(ctx, query, status); err != nil {
		log.Warnf("⚠️ Failed to record run status %q: %v", status, err)
	}
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		c.redis.Close()
	}

	log.Info("Container shut down successfully")
	return nil
}
