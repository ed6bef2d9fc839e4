package cmd

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"referral-ledger/handlers"
	"referral-ledger/ledger"
	"referral-ledger/services"
	"referral-ledger/utils"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger server (remote ledger API, dashboard, admin, payout sweep)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateServer(); err != nil {
			return err
		}

		db, err := utils.OpenDatabase(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		gormLedger := ledger.NewGormLedger(db)
		if err := gormLedger.Migrate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		payoutService := services.NewPayoutService(db, gormLedger, cfg.Thresholds)
		schedCfg := services.SchedulerConfig{
			Payouts:          payoutService,
			SweepInterval:    cfg.SweepInterval,
			SnapshotInterval: cfg.SnapshotInterval,
		}
		if cfg.SnapshotsEnabled() {
			uploader, err := utils.NewR2Uploader(ctx, cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret, cfg.R2Bucket)
			if err != nil {
				return err
			}
			schedCfg.Snapshots = services.NewSnapshotService(gormLedger, uploader, cfg.Thresholds)
		} else {
			log.Println("⚠️  R2 not configured, driver snapshots disabled")
		}

		sched, err := services.StartScheduler(ctx, schedCfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := sched.Shutdown(); err != nil {
				log.Printf("Scheduler shutdown error: %v", err)
			}
		}()

		app := handlers.NewApp(handlers.AppConfig{
			ServiceToken:   cfg.ServiceToken,
			DeviceToken:    cfg.DeviceToken,
			AllowedOrigins: cfg.Origins(),
			AdminRole:      cfg.AdminRole,
			LedgerAPI:      services.NewLedgerAPI(gormLedger),
			DriverService:  services.NewDriverService(gormLedger, payoutService, cfg.Thresholds, cfg.ReferralBaseURL),
		})

		go func() {
			if err := app.Listen(cfg.ListenAddr); err != nil {
				log.Printf("Server error: %v", err)
				stop()
			}
		}()

		log.Printf("✅ Server running on %s", cfg.ListenAddr)
		log.Printf("✅ Payout sweep every %s (thresholds: %d referrals / %d redemptions)",
			cfg.SweepInterval, cfg.Thresholds.Referrals, cfg.Thresholds.Redemptions)

		<-ctx.Done()
		log.Println("Shutting down server...")
		return app.ShutdownWithTimeout(10 * time.Second)
	},
}
