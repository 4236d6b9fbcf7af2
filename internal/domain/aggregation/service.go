package aggregation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"horizon/internal/domain/account"
	"horizon/internal/domain/balance"
	"horizon/internal/domain/transaction"
	"horizon/internal/domain/user"
)

var (
	aggTracer         = otel.Tracer("horizon/aggregation")
	aggMeter          = otel.Meter("horizon/aggregation")
	aggRequests, _    = aggMeter.Int64Counter("aggregation.requests", metric.WithDescription("Aggregation requests by outcome"))
	aggDiagnostics, _ = aggMeter.Int64Counter("aggregation.diagnostics", metric.WithDescription("Recovered degradations by kind"))
	aggDuration, _    = aggMeter.Float64Histogram("aggregation.duration", metric.WithDescription("Aggregation duration in seconds"), metric.WithUnit("s"))
)

// DefaultCallTimeout bounds each provider call when Config leaves it unset.
const DefaultCallTimeout = 10 * time.Second

// Provider is the external financial-data provider.
type Provider interface {
	ListAccounts(ctx context.Context, userID string) ([]account.Raw, error)
	GetAccountTransactions(ctx context.Context, userID, accountID string) ([]transaction.Raw, error)
}

// Config tunes the orchestrator.
type Config struct {
	// CallTimeout bounds every individual provider call.
	CallTimeout time.Duration
}

// Service orchestrates one aggregation per request. It holds only immutable
// collaborators and is safe for concurrent use.
type Service struct {
	provider     Provider
	identity     user.Provider
	accounts     *account.Normalizer
	transactions *transaction.Normalizer
	callTimeout  time.Duration
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string
}

// NewService creates a new aggregation service.
func NewService(
	provider Provider,
	identity user.Provider,
	accounts *account.Normalizer,
	transactions *transaction.Normalizer,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		provider:     provider,
		identity:     identity,
		accounts:     accounts,
		transactions: transactions,
		callTimeout:  cfg.CallTimeout,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// AggregateForCaller resolves the caller through the identity provider and
// aggregates for them. The provider is never called for an anonymous caller.
func (s *Service) AggregateForCaller(ctx context.Context, selectedAccountID string) (*Result, error) {
	userID, err := resolveCaller(ctx, s.identity)
	if err != nil {
		return nil, err
	}
	return s.AggregateForUser(ctx, userID, selectedAccountID)
}

func resolveCaller(ctx context.Context, identity user.Provider) (string, error) {
	if identity == nil {
		return "", ErrUnauthenticated
	}
	u, err := identity.LoggedInUser(ctx)
	if err != nil {
		if errors.Is(err, user.ErrNotLoggedIn) {
			return "", ErrUnauthenticated
		}
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if u == nil || u.ID == "" {
		return "", ErrUnauthenticated
	}
	return u.ID, nil
}

// AggregateForUser builds the consolidated view for userID. Only a failure
// to list accounts is fatal and yields a *ProviderUnavailableError with no
// view; every later failure degrades the result and adds a diagnostic.
func (s *Service) AggregateForUser(ctx context.Context, userID, selectedAccountID string) (*Result, error) {
	start := s.now()
	ctx, span := aggTracer.Start(ctx, "aggregation.AggregateForUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	run := &request{
		svc:    s,
		userID: userID,
		states: newTracker(),
	}

	result, err := run.execute(ctx, selectedAccountID)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider unavailable")
	case result.Degraded():
		outcome = "degraded"
	}
	span.SetAttributes(
		attribute.String("aggregation.outcome", outcome),
		attribute.Int("aggregation.diagnostics", len(run.diagnostics)),
	)
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	aggRequests.Add(ctx, 1, attrs)
	aggDuration.Record(ctx, s.now().Sub(start).Seconds(), attrs)

	return result, err
}

// request carries the mutable state of one aggregation.
type request struct {
	svc         *Service
	userID      string
	states      *tracker
	diagnostics []Diagnostic
}

func (r *request) execute(ctx context.Context, selectedAccountID string) (*Result, error) {
	s := r.svc

	raws, err := r.listAccounts(ctx)
	if err != nil {
		r.states.advance(StateFailed)
		r.record(ctx, Diagnostic{
			Kind:    KindProviderUnavailable,
			Stage:   StateFetching,
			Message: "account list could not be fetched",
			Err:     err,
		})
		return nil, &ProviderUnavailableError{
			UserID:      r.userID,
			Err:         err,
			Diagnostics: r.diagnostics,
		}
	}

	r.states.advance(StateNormalizing)
	accounts := r.normalizeAccounts(ctx, raws)
	active := r.selectActive(ctx, accounts, selectedAccountID)

	transactions := []transaction.Transaction{}
	if active != nil {
		r.states.advance(StateFetchingTransactions)
		transactions = r.fetchTransactions(ctx, *active)
	}

	r.states.advance(StateConsolidated)
	summary := balance.Consolidate(accounts)
	if summary.Mixed() {
		r.record(ctx, Diagnostic{
			Kind:    KindMixedCurrency,
			Stage:   StateConsolidated,
			Message: fmt.Sprintf("accounts span %d currencies; total is not a single-currency amount", len(summary.ByCurrency)),
		})
	}

	view := &AggregateView{
		RequestID:           s.newID(),
		UserID:              r.userID,
		Accounts:            accounts,
		TotalBanks:          summary.TotalBanks,
		TotalCurrentBalance: summary.TotalCurrentBalance,
		Currency:            summary.Currency,
		BalancesByCurrency:  summary.ByCurrency,
		PerInstitution:      summary.PerInstitution,
		Transactions:        transactions,
		GeneratedAt:         s.now(),
	}
	if active != nil {
		view.ActiveAccountID = active.ID
	}

	r.states.advance(StateDone)

	diagnostics := r.diagnostics
	if diagnostics == nil {
		diagnostics = []Diagnostic{}
	}
	return &Result{
		View:        view,
		Diagnostics: diagnostics,
		States:      r.states.states(),
	}, nil
}

func (r *request) listAccounts(ctx context.Context) ([]account.Raw, error) {
	ctx, span := aggTracer.Start(ctx, "aggregation.ListAccounts")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, r.svc.callTimeout)
	defer cancel()

	raws, err := r.svc.provider.ListAccounts(callCtx, r.userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	span.SetAttributes(attribute.Int("accounts.raw", len(raws)))
	return raws, nil
}

func (r *request) normalizeAccounts(ctx context.Context, raws []account.Raw) []account.Account {
	accounts := make([]account.Account, 0, len(raws))
	seen := make(map[string]int, len(raws))

	for i, raw := range raws {
		acc, err := r.svc.accounts.NormalizeAccount(raw)
		if err != nil {
			d := Diagnostic{
				Kind:     KindMalformedAccount,
				Stage:    StateNormalizing,
				Position: i + 1,
				Message:  err.Error(),
				Err:      err,
			}
			var malformed *account.MalformedError
			if errors.As(err, &malformed) {
				d.AccountID = malformed.AccountID
			}
			r.record(ctx, d)
			continue
		}

		if first, dup := seen[acc.ID]; dup {
			r.record(ctx, Diagnostic{
				Kind:      KindDuplicateAccount,
				Stage:     StateNormalizing,
				AccountID: acc.ID,
				Position:  i + 1,
				Message:   fmt.Sprintf("account %s already listed at position %d", acc.ID, first),
			})
			continue
		}
		seen[acc.ID] = i + 1
		accounts = append(accounts, acc)
	}

	return accounts
}

func (r *request) selectActive(ctx context.Context, accounts []account.Account, selectedAccountID string) *account.Account {
	if len(accounts) == 0 {
		return nil
	}
	if selectedAccountID != "" {
		for i := range accounts {
			if accounts[i].ID == selectedAccountID {
				return &accounts[i]
			}
		}
		r.record(ctx, Diagnostic{
			Kind:      KindSelectedAccountNotFound,
			Stage:     StateNormalizing,
			AccountID: selectedAccountID,
			Message:   fmt.Sprintf("selected account %s not found; showing %s", selectedAccountID, accounts[0].ID),
		})
	}
	return &accounts[0]
}

func (r *request) fetchTransactions(ctx context.Context, active account.Account) []transaction.Transaction {
	ctx, span := aggTracer.Start(ctx, "aggregation.GetAccountTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", active.ID))

	callCtx, cancel := context.WithTimeout(ctx, r.svc.callTimeout)
	raws, err := r.svc.provider.GetAccountTransactions(callCtx, r.userID, active.ID)
	cancel()
	if err != nil {
		span.RecordError(err)
		degraded := &TransactionFetchDegradedError{AccountID: active.ID, Err: err}
		r.record(ctx, Diagnostic{
			Kind:      KindTransactionsDegraded,
			Stage:     StateFetchingTransactions,
			AccountID: active.ID,
			Message:   degraded.Error(),
			Err:       degraded,
		})
		return []transaction.Transaction{}
	}

	batch := r.svc.transactions.
		WithDefaultCurrency(active.Currency).
		NormalizeTransactions(raws, active.ID)

	for _, skipped := range batch.Skipped {
		r.record(ctx, Diagnostic{
			Kind:      KindMalformedTransaction,
			Stage:     StateFetchingTransactions,
			AccountID: active.ID,
			Position:  skipped.Position,
			Message:   skipped.Error(),
			Err:       skipped,
		})
	}
	if batch.Truncated > 0 {
		r.record(ctx, Diagnostic{
			Kind:      KindTransactionsTruncated,
			Stage:     StateFetchingTransactions,
			AccountID: active.ID,
			Message:   fmt.Sprintf("%d older transactions omitted", batch.Truncated),
		})
	}

	span.SetAttributes(attribute.Int("transactions.count", len(batch.Transactions)))
	return batch.Transactions
}

func (r *request) record(ctx context.Context, d Diagnostic) {
	r.diagnostics = append(r.diagnostics, d)
	aggDiagnostics.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(d.Kind))))

	fields := []zap.Field{
		zap.String("user_id", r.userID),
		zap.String("kind", string(d.Kind)),
		zap.String("stage", string(d.Stage)),
	}
	if d.AccountID != "" {
		fields = append(fields, zap.String("account_id", d.AccountID))
	}
	if d.Position > 0 {
		fields = append(fields, zap.Int("position", d.Position))
	}
	if d.Err != nil {
		fields = append(fields, zap.Error(d.Err))
	}
	r.svc.logger.Warn(d.Message, fields...)
}
