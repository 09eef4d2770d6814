package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/amphora/backend/internal/bootstrap"
	"github.com/OFFIS-RIT/amphora/backend/internal/queue"
	"github.com/OFFIS-RIT/amphora/backend/internal/storage"
	"github.com/OFFIS-RIT/amphora/backend/internal/util"
	"github.com/OFFIS-RIT/amphora/backend/pkg/graph"
	"github.com/OFFIS-RIT/amphora/backend/pkg/leaselock"
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"
	"github.com/OFFIS-RIT/amphora/backend/pkg/logger/console"
	pgxstore "github.com/OFFIS-RIT/amphora/backend/pkg/store/pgx"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
		JSON:  util.GetEnvString("LOG_FORMAT", "text") == "json",
	})
	logger.Init(consoleLogger)

	// Payload storage
	var payloads graph.PayloadSource
	var archives queue.ArchiveTarget
	if bucket := util.GetEnv("AWS_BUCKET"); bucket != "" {
		client, err := storage.NewS3Client(ctx)
		if err != nil {
			logger.Fatal("Failed to create S3 client", "err", err)
		}
		st, err := storage.NewS3PayloadStore(storage.NewS3PayloadStoreParams{Client: client, Bucket: bucket})
		if err != nil {
			logger.Fatal("Failed to create payload store", "err", err)
		}
		payloads = st
		exportBucket := util.GetEnvString("EXPORT_BUCKET", bucket)
		exportPrefix := util.GetEnv("EXPORT_PREFIX")
		if exportBucket == bucket {
			archives = st.WithPrefix(exportPrefix)
		} else {
			exports, err := storage.NewS3PayloadStore(storage.NewS3PayloadStoreParams{
				Client: client,
				Bucket: exportBucket,
				Prefix: exportPrefix,
			})
			if err != nil {
				logger.Fatal("Failed to create export store", "err", err)
			}
			archives = exports
		}
	} else if root := util.GetEnv("PAYLOAD_DIR"); root != "" {
		payloads = storage.NewFilePayloadStore(root)
		logger.Warn("No AWS_BUCKET set, reading payloads from disk; exports are disabled", "dir", root)
	}

	// Init pgx client
	databaseURL := util.GetEnv("DATABASE_URL")
	if util.GetEnvBool("MIGRATE", false) {
		if err := pgxstore.Migrate(databaseURL); err != nil {
			logger.Fatal("Failed to migrate database", "err", err)
		}
	}
	pgConn, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	g, err := bootstrap.NewGraphClient(pgxstore.NewGraphDBStorageWithConnection(pgConn), payloads)
	if err != nil {
		logger.Fatal("Failed to create graph client", "err", err)
	}
	if err := bootstrap.Vocabulary(ctx, g); err != nil {
		logger.Fatal("Failed to bootstrap vocabulary", "err", err)
	}

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	processor, err := queue.NewProcessor(queue.NewProcessorParams{
		Graph:    g,
		Locks:    leaselock.New(pgConn),
		Archives: archives,
		Events:   ch,
		LeaseTTL: util.GetEnvMillis("JOB_LEASE_TTL_MS", 10*time.Minute),
	})
	if err != nil {
		logger.Fatal("Failed to create processor", "err", err)
	}

	// One consumer channel with prefetch 1 hands out a single message at a
	// time across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()
	if err := consumerCh.Qos(1, 0, true); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	logger.Info("[Queue] Listening for messages", "queues", queue.Queues)
	if err := consume(ctx, consumerCh, processor); err != nil {
		logger.Fatal("[Queue] Consumer stopped", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}

type delivery struct {
	msg       amqp.Delivery
	queueName string
}

// consume fans the deliveries of every job queue into one loop and runs them
// through the processor until ctx is cancelled.
func consume(ctx context.Context, ch *amqp.Channel, processor *queue.Processor) error {
	eg, ctx := errgroup.WithContext(ctx)
	deliveries := make(chan delivery)

	for _, name := range queue.Queues {
		msgs, err := ch.Consume(name, name+"_consumer", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", name, err)
		}
		eg.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case msg, ok := <-msgs:
					if !ok {
						return fmt.Errorf("delivery channel for %s closed", name)
					}
					select {
					case deliveries <- delivery{msg: msg, queueName: name}:
					case <-ctx.Done():
						return nil
					}
				}
			}
		})
	}

	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case d := <-deliveries:
				handle(ctx, ch, processor, d)
			}
		}
	})

	return eg.Wait()
}

func handle(ctx context.Context, ch *amqp.Channel, processor *queue.Processor, d delivery) {
	start := time.Now()
	err := processor.Process(ctx, d.queueName, d.msg.Body)
	took := time.Since(start).Round(time.Millisecond).String()
	if err != nil {
		logger.Error("[Queue] Job failed", "queue", d.queueName, "duration", took, "err", err)
		queue.HandleProcessingError(ch, d.msg, d.queueName)
		return
	}
	if err := d.msg.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "queue", d.queueName, "err", err)
		return
	}
	logger.Info("[Queue] Job done", "queue", d.queueName, "duration", took)
}
