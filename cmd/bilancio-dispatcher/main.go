// bilancio-dispatcher consumes alert messages from RabbitMQ and delivers
// them. Delivery here is the structured log; a notification frontend can
// consume the same queue instead.
package main

import (
	"context"
	"os"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/cli"
	"bilancio/internal/config"
	"bilancio/internal/log"
)

func main() {
	cli.LoadEnvFile()

	bootCfg := config.Load()
	logger := cli.SetupLogger(log.ComponentDispatcher, bootCfg.LogLevel)
	logger.Info("Starting bilancio-dispatcher", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the dispatcher")
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPSyncQueue, cfg.AMQPAlertQueue)
	if err != nil {
		logger.Error("Failed to connect to broker", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, nil)

	err = client.ConsumeAlerts(ctx, func(msg *amqp.AlertMessage) error {
		logger.InfoContext(ctx, "Alert delivered",
			log.FieldOperation, log.OpDispatch,
			log.FieldAlertKind, msg.Kind,
			"message", msg.Message,
			"sub_message", msg.SubMessage)
		return nil
	})
	if err != nil && err != context.Canceled {
		logger.Error("Alert consumer stopped", log.FieldError, err)
	}

	cli.WaitForShutdown(ctx, done)
}
