// Package main is the entry point for the rewards platform backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"earngram-backend/internal/config"
	"earngram-backend/internal/pkg/db"
	"earngram-backend/internal/pkg/lock"
	"earngram-backend/internal/repository"
	"earngram-backend/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	withdrawalRepo := repository.NewWithdrawalRepository(dbPool.Pool)
	depositRepo := repository.NewDepositRepository(dbPool.Pool)

	// Per-account lock for check-then-act sections
	accountLock := lock.NewAccountLock()

	// Initialize services
	accountService := service.NewAccountService(accountRepo, txRepo, cfg, cfg.Ban.StrikeLimit)

	rewardService := service.NewRewardService(
		accountRepo,
		txRepo,
		accountLock,
		cfg.Rewards.ReferralRatesBP,
		cfg.Rewards.DailyBonus,
		cfg.Rewards.BonusCooldownHours,
	)

	withdrawalService := service.NewWithdrawalService(accountRepo, withdrawalRepo, txRepo, accountLock, cfg)

	// Deposit verification stays manual until an external verification
	// integration is configured.
	depositService := service.NewDepositService(
		accountRepo,
		depositRepo,
		txRepo,
		accountLock,
		cfg,
		service.ManualReviewVerifier{},
		cfg.Deposit.CooldownMinutes,
	)

	securityService := service.NewSecurityService(accountRepo, cfg)

	core := service.NewCore(
		accountService,
		rewardService,
		withdrawalService,
		depositService,
		securityService,
	)
	_ = core // consumed by the messaging and HTTP gateways, wired separately

	// Schedule the detached deposit verification sweep
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Deposit.SweepSchedule, func() {
		sweepCtx, sweepCancel := context.WithTimeout(ctx, time.Minute)
		defer sweepCancel()
		depositService.RunVerificationSweep(sweepCtx)
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Deposit.SweepSchedule).Msg("Failed to schedule deposit verification sweep")
	}
	scheduler.Start()

	log.Info().
		Str("sweep_schedule", cfg.Deposit.SweepSchedule).
		Ints64("admin_ids", cfg.Admin.IDs).
		Msg("Rewards backend started")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown: stop the sweep before closing the pool
	sweepStop := scheduler.Stop()
	<-sweepStop.Done()
	log.Info().Msg("Backend stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: accounts table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			balance_fiat BIGINT NOT NULL DEFAULT 0 CHECK (balance_fiat >= 0),
			balance_crypto BIGINT NOT NULL DEFAULT 0 CHECK (balance_crypto >= 0),
			total_earnings BIGINT NOT NULL DEFAULT 0,
			invited_by BIGINT,
			referral_count BIGINT NOT NULL DEFAULT 0,
			is_banned BOOLEAN NOT NULL DEFAULT FALSE,
			strike_count INT NOT NULL DEFAULT 0,
			is_flagged BOOLEAN NOT NULL DEFAULT FALSE,
			flag_reason TEXT,
			device_id VARCHAR(64),
			last_ip VARCHAR(45),
			last_deposit_at TIMESTAMPTZ,
			last_bonus_claim_at TIMESTAMPTZ,
			is_verified BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_earnings ON accounts(total_earnings DESC);
		CREATE INDEX IF NOT EXISTS idx_accounts_device ON accounts(device_id) WHERE device_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_accounts_last_ip ON accounts(last_ip) WHERE last_ip IS NOT NULL;
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: accounts table created")

	// Migration 2: transactions table (append-only audit log)
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			currency VARCHAR(10) NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_account_time ON transactions(account_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: transactions table created")

	// Migration 3: withdrawals table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS withdrawals (
			id BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			currency VARCHAR(10) NOT NULL,
			method VARCHAR(100) NOT NULL,
			address TEXT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawals(status, created_at ASC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: withdrawals table created")

	// Migration 4: deposits table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS deposits (
			id BIGSERIAL PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			currency VARCHAR(10) NOT NULL,
			method VARCHAR(100) NOT NULL,
			tx_ref TEXT NOT NULL,
			sender TEXT,
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_deposits_status ON deposits(status, created_at ASC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: deposits table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
