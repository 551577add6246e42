package app

import (
	"fmt"

	"github.com/allisson/outbox/internal/database"
	dlqRepository "github.com/allisson/outbox/internal/dlq/repository"
	dlqUsecase "github.com/allisson/outbox/internal/dlq/usecase"
)

// DlqRepository returns the dead letter repository based on database driver.
func (c *Container) DlqRepository() (dlqUsecase.DlqEventRepository, error) {
	var err error
	c.dlqRepoInit.Do(func() {
		c.dlqRepo, err = c.initDlqRepository()
		if err != nil {
			c.initErrors["dlqRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["dlqRepo"]; exists {
		return nil, storedErr
	}
	return c.dlqRepo, nil
}

// DlqUseCase returns the dead letter manager, decorated with metrics recording.
func (c *Container) DlqUseCase() (dlqUsecase.UseCase, error) {
	var err error
	c.dlqUseCaseInit.Do(func() {
		c.dlqUseCase, err = c.initDlqUseCase()
		if err != nil {
			c.initErrors["dlqUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["dlqUseCase"]; exists {
		return nil, storedErr
	}
	return c.dlqUseCase, nil
}

// TransferUseCase returns the bidirectional outbox/DLQ transfer instance,
// decorated with metrics recording.
func (c *Container) TransferUseCase() (dlqUsecase.TransferUseCaseInterface, error) {
	var err error
	c.transferUseCaseInit.Do(func() {
		c.transferUseCase, err = c.initTransferUseCase()
		if err != nil {
			c.initErrors["transferUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["transferUseCase"]; exists {
		return nil, storedErr
	}
	return c.transferUseCase, nil
}

// initDlqRepository creates the dead letter repository instance.
func (c *Container) initDlqRepository() (dlqUsecase.DlqEventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for dlq repository: %w", err)
	}

	// Select the appropriate repository based on the database driver
	switch c.config.DBDriver {
	case database.DriverMySQL:
		return dlqRepository.NewMySQLDlqEventRepository(db), nil
	case database.DriverPostgres:
		return dlqRepository.NewPostgreSQLDlqEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initDlqUseCase creates the dead letter use case with its decorators.
func (c *Container) initDlqUseCase() (dlqUsecase.UseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for dlq use case: %w", err)
	}

	repo, err := c.DlqRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get repository for dlq use case: %w", err)
	}

	useCase := dlqUsecase.UseCase(dlqUsecase.NewDlqUseCase(txManager, repo, c.Logger()))

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for dlq use case: %w", err)
	}
	return dlqUsecase.NewDlqUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initTransferUseCase creates the transfer use case with its decorators.
// No transfer notifier is wired; the post-move alert hook stays open for
// broker-specific builds.
func (c *Container) initTransferUseCase() (dlqUsecase.TransferUseCaseInterface, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for transfer use case: %w", err)
	}

	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for transfer use case: %w", err)
	}

	dlqRepo, err := c.DlqRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get dlq repository for transfer use case: %w", err)
	}

	useCase := dlqUsecase.TransferUseCaseInterface(
		dlqUsecase.NewTransferUseCase(txManager, outboxRepo, dlqRepo, nil, c.Logger()),
	)

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for transfer use case: %w", err)
	}
	return dlqUsecase.NewTransferUseCaseWithMetrics(useCase, businessMetrics), nil
}
