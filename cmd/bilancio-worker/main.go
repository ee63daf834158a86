package main

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/amqp"
	"bilancio/internal/cache"
	"bilancio/internal/cli"
	"bilancio/internal/config"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/services"
)

func main() {
	cli.LoadEnvFile()

	bootCfg := config.Load()
	logger := cli.SetupLogger(log.ComponentWorker, bootCfg.LogLevel)
	logger.Info("Starting bilancio-worker", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	if cfg.MonthlyBudgetCents > 0 {
		budget := core.Money{Cents: cfg.MonthlyBudgetCents}
		if err := repo.SetMonthlyBudget(context.Background(), budget); err != nil {
			logger.Warn("Failed to store configured monthly budget", log.FieldError, err)
		} else {
			logger.Info("Monthly budget configured", log.FieldAmountCents, budget.Cents)
		}
	}

	// AMQP is optional: without a broker the worker still materializes
	// recurring transactions, alerts just stay in the local log.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPSyncQueue, cfg.AMQPAlertQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without broker",
				log.FieldError, err)
		} else {
			amqpClient = client
			defer amqpClient.Close()
			logger.Info("AMQP client initialized",
				"exchange", cfg.AMQPExchange,
				"alert_queue", cfg.AMQPAlertQueue)
		}
	} else {
		logger.Info("AMQP disabled, alerts will only be logged")
	}

	aggregates := services.NewAggregator(repo, repo)

	cacheManager := cache.NewManager()
	cacheManager.Register(aggregates)
	cacheManager.StartCleanup(10 * time.Minute)
	defer cacheManager.Stop()

	var publisher services.SyncPublisher
	var dispatcher services.AlertDispatcher
	if amqpClient != nil {
		publisher = amqpClient
		dispatcher = amqpClient
	}

	txnService := services.NewTransactionService(repo, aggregates, publisher)
	scheduler := services.NewScheduler(repo, txnService)
	engine := services.NewAlertEngine(repo, aggregates, repo)
	processor := services.NewProcessor(scheduler, engine, dispatcher)

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, nil)

	logger.Info("Recurring pass configured",
		"interval", cfg.PassInterval,
		"projection_days", cfg.ProjectionDays,
		"sqlite_db", cfg.SQLiteDBPath)

	// Catch up on anything missed while the worker was down.
	runPass(ctx, logger, processor, services.TriggerForeground)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(cfg.PassInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				runPass(gctx, logger, processor, services.TriggerTransaction)
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			logUpcoming(gctx, logger, repo, scheduler, cfg.ProjectionDays)
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
			}
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("Worker stopped", log.FieldError, err)
	}
	cli.WaitForShutdown(ctx, done)
}

func runPass(ctx context.Context, logger *log.Logger, processor *services.Processor, trigger services.Trigger) {
	start := time.Now()
	created, err := processor.RunPass(ctx, trigger, core.DateOf(time.Now()))
	if err != nil {
		logger.ErrorContext(ctx, "Recurring pass failed",
			log.FieldError, err,
			log.FieldTrigger, string(trigger))
		return
	}
	logger.InfoContext(ctx, "Recurring pass complete",
		"transactions_created", len(created),
		log.FieldTrigger, string(trigger),
		log.FieldDuration, time.Since(start).Milliseconds())
}

// logUpcoming previews the occurrences due in the next few days so operators
// can sanity-check rule configuration from the logs alone.
func logUpcoming(ctx context.Context, logger *log.Logger, rules services.RuleRepository, scheduler *services.Scheduler, days int) {
	active, err := rules.ListActiveRules(ctx)
	if err != nil {
		logger.WarnContext(ctx, "Failed to list rules for projection", log.FieldError, err)
		return
	}

	today := core.DateOf(time.Now())
	upcoming := scheduler.ProjectOccurrences(active, today, today.AddDays(days))
	logger.InfoContext(ctx, "Upcoming recurring occurrences",
		log.FieldOperation, log.OpProject,
		"count", len(upcoming),
		"window_days", days)
	for _, occ := range upcoming {
		logger.DebugContext(ctx, "Projected occurrence",
			log.FieldRuleID, occ.RuleID,
			log.FieldDate, occ.Date.DayKey(),
			log.FieldAmountCents, occ.Amount.Cents)
	}
}
