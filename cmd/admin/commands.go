package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/subcommands"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"horizon/internal/app"
	"horizon/internal/domain/aggregation"
	"horizon/internal/domain/user"
	"horizon/internal/infrastructure/crypto"
	"horizon/internal/infrastructure/postgres"
	"horizon/internal/shared/auth"
	"horizon/internal/shared/config"
	"horizon/internal/shared/logger"
)

// env bundles what every database-backed command needs.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *postgres.DB
	links  *postgres.LinkRepository
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	lg, err := logger.New(cfg.Env, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	db, err := postgres.New(ctx, cfg.Database.ConnectionString(), postgres.PoolConfig{})
	if err != nil {
		return nil, err
	}
	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &env{cfg: cfg, logger: lg, db: db, links: postgres.NewLinkRepository(db, encryptor)}, nil
}

func (e *env) Close() {
	e.db.Close()
	e.logger.Sync()
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, "Error:", err)
	return subcommands.ExitFailure
}

type migrateCmd struct{}

func (*migrateCmd) Name() string             { return "migrate" }
func (*migrateCmd) Synopsis() string         { return "apply database migrations" }
func (*migrateCmd) Usage() string            { return "admin migrate\n" }
func (*migrateCmd) SetFlags(f *flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := openEnv(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.Close()

	if err := e.db.Migrate(ctx); err != nil {
		return fail(err)
	}
	fmt.Println("migrations applied")
	return subcommands.ExitSuccess
}

type linkCmd struct {
	userID string
	key    string
	remove bool
}

func (*linkCmd) Name() string     { return "link" }
func (*linkCmd) Synopsis() string { return "store or remove a user's provider API key" }
func (*linkCmd) Usage() string {
	return `admin link -user-id <id> [-key <key> | -delete]

  Stores the user's provider key encrypted at rest. Without -key the key is
  read from the first line of stdin.
`
}

func (c *linkCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.userID, "user-id", "", "User ID to link")
	f.StringVar(&c.key, "key", "", "Provider API key (read from stdin when empty)")
	f.BoolVar(&c.remove, "delete", false, "Remove the user's link instead")
}

func (c *linkCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.userID == "" {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	e, err := openEnv(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.Close()

	if c.remove {
		if err := e.links.Delete(ctx, c.userID); err != nil {
			return fail(err)
		}
		fmt.Printf("unlinked %s\n", c.userID)
		return subcommands.ExitSuccess
	}

	key := c.key
	if key == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fail(fmt.Errorf("read key from stdin: %w", err))
		}
		key = strings.TrimSpace(line)
	}
	if key == "" {
		return fail(errors.New("empty provider key"))
	}

	if err := e.links.Upsert(ctx, c.userID, key); err != nil {
		return fail(err)
	}
	fmt.Printf("linked %s\n", c.userID)
	return subcommands.ExitSuccess
}

type tokenCmd struct {
	userID string
	name   string
	email  string
}

func (*tokenCmd) Name() string     { return "token" }
func (*tokenCmd) Synopsis() string { return "issue an access token for a user" }
func (*tokenCmd) Usage() string {
	return "admin token -user-id <id> [-name <name>] [-email <email>]\n"
}

func (c *tokenCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.userID, "user-id", "", "User ID (token subject)")
	f.StringVar(&c.name, "name", "", "Display name")
	f.StringVar(&c.email, "email", "", "Email address")
}

func (c *tokenCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.userID == "" {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	cfg, err := config.Load()
	if err != nil {
		return fail(err)
	}

	token, err := auth.NewJWT(cfg.JWT.Secret, cfg.JWT.TTL).Generate(user.User{ID: c.userID, Name: c.name, Email: c.email})
	if err != nil {
		return fail(err)
	}
	fmt.Println(token)
	return subcommands.ExitSuccess
}

type aggregateCmd struct {
	userIDs   string
	all       bool
	accountID string
	workers   int
	timeout   time.Duration
}

func (*aggregateCmd) Name() string     { return "aggregate" }
func (*aggregateCmd) Synopsis() string { return "aggregate users' accounts and print the views as JSON" }
func (*aggregateCmd) Usage() string {
	return `admin aggregate (-user-id <id>[,<id>...] | -all) [-account-id <id>] [-workers N] [-timeout 5m]

  Runs a fresh aggregation against the provider for each user, bypassing
  any cache, and prints one JSON document per user.
`
}

func (c *aggregateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.userIDs, "user-id", "", "User ID(s) to aggregate (comma-separated)")
	f.BoolVar(&c.all, "all", false, "Aggregate every linked user")
	f.StringVar(&c.accountID, "account-id", "", "Selected account for the transaction feed")
	f.IntVar(&c.workers, "workers", 4, "Number of concurrent aggregations")
	f.DurationVar(&c.timeout, "timeout", 5*time.Minute, "Timeout for the whole run")
}

func (c *aggregateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.userIDs == "" && !c.all {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	e, err := openEnv(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.Close()

	svc, err := app.NewAggregationService(e.cfg, e.links, e.logger)
	if err != nil {
		return fail(err)
	}

	userIDs := splitIDs(c.userIDs)
	if c.all {
		userIDs, err = e.links.ListLinkedUserIDs(ctx)
		if err != nil {
			return fail(err)
		}
	}
	if len(userIDs) == 0 {
		fmt.Fprintln(os.Stderr, "no users to process")
		return subcommands.ExitSuccess
	}

	results, failed := aggregateAll(ctx, svc, userIDs, c.accountID, c.workers)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, id := range userIDs {
		if r, ok := results[id]; ok {
			enc.Encode(r)
		}
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d aggregations failed\n", failed, len(userIDs))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// userAggregator is satisfied by *aggregation.Service.
type userAggregator interface {
	AggregateForUser(ctx context.Context, userID, selectedAccountID string) (*aggregation.Result, error)
}

// aggregateAll runs one aggregation per user with at most workers in flight.
// Failures are reported on stderr and counted; they do not stop the others.
func aggregateAll(ctx context.Context, svc userAggregator, userIDs []string, accountID string, workers int) (map[string]*aggregation.Result, int) {
	var (
		mu      sync.Mutex
		results = make(map[string]*aggregation.Result, len(userIDs))
		failed  int
	)

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, id := range userIDs {
		g.Go(func() error {
			r, err := svc.AggregateForUser(gctx, id, accountID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "user %s: %v\n", id, err)
				return nil
			}
			results[id] = r
			return nil
		})
	}
	g.Wait()
	return results, failed
}

func splitIDs(s string) []string {
	var ids []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}
