package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/keelhq/keelbooks/internal/credit"
	"github.com/keelhq/keelbooks/internal/document"
	"github.com/keelhq/keelbooks/internal/infra/postgres"
	infraredis "github.com/keelhq/keelbooks/internal/infra/redis"
	"github.com/keelhq/keelbooks/internal/ledger"
	"github.com/keelhq/keelbooks/internal/reconcile"
	"github.com/keelhq/keelbooks/pkg/config"
	"github.com/keelhq/keelbooks/pkg/logger"
)

var tenantFlag string

var rootCmd = &cobra.Command{
	Use:   "finops",
	Short: "Operator tooling for the books: verify and repair financial invariants",
	Long: `finops runs financial integrity operations against the database.

reconcile re-derives every invariant from source records and reports
discrepancies without changing anything. recalculate repairs the derived
caches (invoice balances, client credit rollups) from source records.`,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Check a tenant's books and report discrepancies",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd.Context(), func(ctx context.Context, d *deps, tenantID uuid.UUID) error {
			report, err := d.checker.Run(ctx, tenantID)
			if err != nil {
				return err
			}
			if d.cache != nil {
				if err := d.cache.SetReport(ctx, reportPayload(report)); err != nil {
					d.log.Warn("failed to cache reconciliation report", "error", err)
				}
			}
			if report.Clean() {
				fmt.Println("no discrepancies found")
				return nil
			}
			for _, f := range report.Findings {
				fmt.Printf("%-7s %-22s %s  %s\n", f.Severity, f.Check, f.EntityID, f.Message)
			}
			if len(report.Errors()) > 0 {
				return fmt.Errorf("%d invariant violations found", len(report.Errors()))
			}
			return nil
		})
	},
}

var recalculateCmd = &cobra.Command{
	Use:   "recalculate",
	Short: "Repair a tenant's derived balances from source records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd.Context(), func(ctx context.Context, d *deps, tenantID uuid.UUID) error {
			if err := d.checker.Recalculate(ctx, tenantID); err != nil {
				return err
			}
			if d.cache != nil {
				if err := refreshDisplayCache(ctx, d, tenantID); err != nil {
					d.log.Warn("failed to refresh display cache", "error", err)
				}
			}
			fmt.Println("derived balances recalculated")
			return nil
		})
	},
}

// reportPayload converts a report into its cacheable summary.
func reportPayload(report *reconcile.Report) infraredis.CachedReport {
	cached := infraredis.CachedReport{
		TenantID: report.TenantID,
		RanAt:    report.RanAt,
		Errors:   len(report.Errors()),
		Warnings: len(report.Findings) - len(report.Errors()),
	}
	for _, f := range report.Findings {
		cached.Findings = append(cached.Findings, infraredis.CachedFinding{
			Severity: string(f.Severity),
			Check:    f.Check,
			EntityID: f.EntityID,
			Message:  f.Message,
		})
	}
	return cached
}

// refreshDisplayCache pushes the freshly repaired balances into the
// Redis display cache so dashboards pick them up immediately.
func refreshDisplayCache(ctx context.Context, d *deps, tenantID uuid.UUID) error {
	docs, err := d.documents.List(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if doc.Kind != document.KindInvoice {
			continue
		}
		if err := d.cache.SetInvoiceBalance(ctx, tenantID, doc.ID, doc.BalanceDue); err != nil {
			return err
		}
	}

	clients, err := d.credits.ListClients(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, client := range clients {
		if err := d.cache.SetClientCredit(ctx, tenantID, client.ID, client.CreditBalance); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tenantFlag, "tenant", "", "tenant ID (required)")
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(recalculateCmd)
}

// deps bundles the wired services the subcommands run against.
type deps struct {
	checker   *reconcile.Checker
	documents *document.Service
	credits   credit.Repository
	cache     *infraredis.BalanceCache
	log       *logger.Logger
}

// withDeps wires the storage layer and services, then runs fn.
func withDeps(ctx context.Context, fn func(context.Context, *deps, uuid.UUID) error) error {
	tenantID, err := uuid.Parse(tenantFlag)
	if err != nil {
		return fmt.Errorf("invalid --tenant: %w", err)
	}

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.NewDefault(cfg.Env)

	db, err := postgres.NewPool(ctx, postgres.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: int32(cfg.DBMaxConns),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	journalRepo := postgres.NewLedgerRepository(db.Pool)
	documentRepo := postgres.NewDocumentRepository(db.Pool)
	activityRepo := postgres.NewActivityRepository(db.Pool)
	creditRepo := postgres.NewCreditRepository(db.Pool)
	paymentRepo := postgres.NewPaymentRepository(db.Pool)

	journalService := ledger.NewService(journalRepo)
	documentService := document.NewService(documentRepo, activityRepo, journalService)
	creditService := credit.NewService(creditRepo, journalService, documentService)

	checker := reconcile.NewChecker(
		journalRepo,
		documentRepo,
		activityRepo,
		creditRepo,
		paymentRepo,
		documentService,
		creditService,
		log,
	)

	d := &deps{
		checker:   checker,
		documents: documentService,
		credits:   creditRepo,
		log:       log,
	}

	// The display cache is optional; the CLI works without Redis.
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, skipping display cache", "error", err)
		} else {
			d.cache = infraredis.NewBalanceCache(redisClient, log)
		}
	}

	return fn(ctx, d, tenantID)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
