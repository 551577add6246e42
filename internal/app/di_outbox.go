package app

import (
	"fmt"

	"github.com/allisson/outbox/internal/cache"
	"github.com/allisson/outbox/internal/database"
	"github.com/allisson/outbox/internal/messaging"
	outboxRepository "github.com/allisson/outbox/internal/outbox/repository"
	outboxUsecase "github.com/allisson/outbox/internal/outbox/usecase"
)

// OutboxRepository returns the outbox event repository based on database driver.
func (c *Container) OutboxRepository() (outboxUsecase.OutboxEventRepository, error) {
	var err error
	c.outboxRepoInit.Do(func() {
		c.outboxRepo, err = c.initOutboxRepository()
		if err != nil {
			c.initErrors["outboxRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxRepo"]; exists {
		return nil, storedErr
	}
	return c.outboxRepo, nil
}

// OutboxUseCase returns the outbox manager, decorated with metrics recording
// and count caching when those features are enabled.
func (c *Container) OutboxUseCase() (outboxUsecase.UseCase, error) {
	var err error
	c.outboxUseCaseInit.Do(func() {
		c.outboxUseCase, err = c.initOutboxUseCase()
		if err != nil {
			c.initErrors["outboxUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxUseCase"]; exists {
		return nil, storedErr
	}
	return c.outboxUseCase, nil
}

// PolicyRegistry returns the relay policy registry seeded with the default
// policy from the configuration.
func (c *Container) PolicyRegistry() *outboxUsecase.PolicyRegistry {
	c.policyRegistryInit.Do(func() {
		c.policyRegistry = outboxUsecase.NewPolicyRegistry(outboxUsecase.Policy{
			BatchSize:     c.config.OutboxBatchSize,
			MaxRetryCount: c.config.OutboxMaxRetryCount,
			RetryBackoff:  c.config.OutboxRetryBackoff,
		})
	})
	return c.policyRegistry
}

// Sender returns the broker sender instance.
func (c *Container) Sender() messaging.Sender {
	c.senderInit.Do(func() {
		c.sender = messaging.NewLoggingSender(c.Logger())
	})
	return c.sender
}

// Serializer returns the payload serializer instance.
func (c *Container) Serializer() messaging.Serializer {
	c.serializerInit.Do(func() {
		c.serializer = messaging.NewJSONSerializer()
	})
	return c.serializer
}

// ResolverRegistry returns the inbound event-id resolver registry.
func (c *Container) ResolverRegistry() *messaging.ResolverRegistry {
	c.resolverRegistryInit.Do(func() {
		c.resolverRegistry = messaging.NewResolverRegistry()
	})
	return c.resolverRegistry
}

// RelayUseCase returns the relay instance.
func (c *Container) RelayUseCase() (*outboxUsecase.RelayUseCase, error) {
	var err error
	c.relayUseCaseInit.Do(func() {
		c.relayUseCase, err = c.initRelayUseCase()
		if err != nil {
			c.initErrors["relayUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["relayUseCase"]; exists {
		return nil, storedErr
	}
	return c.relayUseCase, nil
}

// initOutboxRepository creates the outbox event repository instance.
func (c *Container) initOutboxRepository() (outboxUsecase.OutboxEventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for outbox repository: %w", err)
	}

	// Select the appropriate repository based on the database driver
	switch c.config.DBDriver {
	case database.DriverMySQL:
		return outboxRepository.NewMySQLOutboxEventRepository(db), nil
	case database.DriverPostgres:
		return outboxRepository.NewPostgreSQLOutboxEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initOutboxUseCase creates the outbox use case with its decorators.
func (c *Container) initOutboxUseCase() (outboxUsecase.UseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for outbox use case: %w", err)
	}

	repo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get repository for outbox use case: %w", err)
	}

	useCase := outboxUsecase.UseCase(outboxUsecase.NewOutboxUseCase(txManager, repo, c.Logger()))

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for outbox use case: %w", err)
	}
	useCase = outboxUsecase.NewOutboxUseCaseWithMetrics(useCase, businessMetrics)

	if c.config.CacheEnabled {
		countCache, err := c.Cache()
		if err != nil {
			return nil, fmt.Errorf("failed to get cache for outbox use case: %w", err)
		}
		useCase = outboxUsecase.NewOutboxUseCaseWithCountCache(useCase, countCache, cache.CountTTLConfig{
			TotalTTL:           c.config.CacheTotalCountTTL,
			ByStatusTTL:        c.config.CacheByStatusCountTTL,
			ByTypeAndStatusTTL: c.config.CacheByTypeAndStatusCountTTL,
		})
	}

	return useCase, nil
}

// initRelayUseCase creates the relay instance.
func (c *Container) initRelayUseCase() (*outboxUsecase.RelayUseCase, error) {
	outboxUseCase, err := c.OutboxUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox use case for relay: %w", err)
	}

	return outboxUsecase.NewRelayUseCase(
		outboxUseCase,
		c.Sender(),
		c.PolicyRegistry(),
		c.config.OutboxSendTimeout,
		c.Logger(),
	), nil
}
