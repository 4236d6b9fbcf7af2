// Package app wires the aggregation pipeline from configuration. It is
// shared by the API server and the admin CLI.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"horizon/internal/domain/account"
	"horizon/internal/domain/aggregation"
	"horizon/internal/domain/transaction"
	"horizon/internal/domain/user"
	"horizon/internal/infrastructure/openfinance"
	"horizon/internal/shared/config"
)

// NewAggregationService builds the uncached orchestrator against the
// configured provider. keys resolves each user's provider key.
func NewAggregationService(cfg *config.Config, keys openfinance.KeyResolver, logger *zap.Logger) (*aggregation.Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	accounts, transactions, err := NewNormalizers(cfg)
	if err != nil {
		return nil, err
	}

	client := openfinance.NewClient(openfinance.Config{
		BaseURL:    cfg.Provider.BaseURL,
		Timeout:    cfg.Provider.CallTimeout,
		MaxRetries: cfg.Provider.MaxRetries,
		RateLimit:  cfg.Provider.RateLimit,
		RateBurst:  cfg.Provider.RateBurst,
	}, keys, logger.Named("provider"))

	return aggregation.NewService(client, user.ContextProvider{}, accounts, transactions, aggregation.Config{
		CallTimeout: cfg.Provider.CallTimeout,
	}, logger.Named("aggregation")), nil
}

// NewNormalizers builds the account and transaction normalizers for the
// configured schema. AGGREGATION_DEFAULT_CURRENCY replaces the schema's
// fallback currency for accounts; transactions inherit their account's.
func NewNormalizers(cfg *config.Config) (*account.Normalizer, *transaction.Normalizer, error) {
	accountSchema, err := account.SchemaByName(cfg.Provider.Schema)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Aggregation.DefaultCurrency != "" {
		accountSchema.DefaultCurrency = cfg.Aggregation.DefaultCurrency
	}
	accounts, err := account.NewNormalizer(accountSchema)
	if err != nil {
		return nil, nil, fmt.Errorf("account normalizer: %w", err)
	}

	txSchema, err := transaction.SchemaByName(cfg.Provider.Schema)
	if err != nil {
		return nil, nil, err
	}
	transactions, err := transaction.NewNormalizer(txSchema, cfg.Aggregation.TransactionLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("transaction normalizer: %w", err)
	}
	return accounts, transactions, nil
}
