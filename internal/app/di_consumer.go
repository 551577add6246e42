package app

import (
	"fmt"

	consumerRepository "github.com/allisson/outbox/internal/consumer/repository"
	consumerUsecase "github.com/allisson/outbox/internal/consumer/usecase"
	"github.com/allisson/outbox/internal/database"
)

// ConsumedEventRepository returns the consumed event repository based on database driver.
func (c *Container) ConsumedEventRepository() (consumerUsecase.ConsumedEventRepository, error) {
	var err error
	c.consumedRepoInit.Do(func() {
		c.consumedRepo, err = c.initConsumedEventRepository()
		if err != nil {
			c.initErrors["consumedRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["consumedRepo"]; exists {
		return nil, storedErr
	}
	return c.consumedRepo, nil
}

// ConsumerUseCase returns the idempotent consumer, decorated with metrics
// recording and the existence cache when those features are enabled.
func (c *Container) ConsumerUseCase() (consumerUsecase.UseCase, error) {
	var err error
	c.consumerUseCaseInit.Do(func() {
		c.consumerUseCase, err = c.initConsumerUseCase()
		if err != nil {
			c.initErrors["consumerUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["consumerUseCase"]; exists {
		return nil, storedErr
	}
	return c.consumerUseCase, nil
}

// initConsumedEventRepository creates the consumed event repository instance.
func (c *Container) initConsumedEventRepository() (consumerUsecase.ConsumedEventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for consumed event repository: %w", err)
	}

	// Select the appropriate repository based on the database driver
	switch c.config.DBDriver {
	case database.DriverMySQL:
		return consumerRepository.NewMySQLConsumedEventRepository(db), nil
	case database.DriverPostgres:
		return consumerRepository.NewPostgreSQLConsumedEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initConsumerUseCase creates the consumer use case with its decorators.
func (c *Container) initConsumerUseCase() (consumerUsecase.UseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for consumer use case: %w", err)
	}

	repo, err := c.ConsumedEventRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get repository for consumer use case: %w", err)
	}

	useCase := consumerUsecase.UseCase(consumerUsecase.NewConsumerUseCase(txManager, repo, c.Logger()))

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for consumer use case: %w", err)
	}
	useCase = consumerUsecase.NewConsumerUseCaseWithMetrics(useCase, businessMetrics)

	if c.config.CacheEnabled {
		consumedCache, err := c.Cache()
		if err != nil {
			return nil, fmt.Errorf("failed to get cache for consumer use case: %w", err)
		}
		useCase = consumerUsecase.NewConsumerUseCaseWithCache(useCase, consumedCache, c.config.CacheConsumedTTL)
	}

	return useCase, nil
}
