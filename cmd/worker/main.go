package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/egt-labs/egt-gpt/internal/ai"
	"github.com/egt-labs/egt-gpt/internal/config"
	"github.com/egt-labs/egt-gpt/internal/conversation"
	"github.com/egt-labs/egt-gpt/internal/db"
	"github.com/egt-labs/egt-gpt/internal/history"
	"github.com/egt-labs/egt-gpt/internal/logging"
	"github.com/egt-labs/egt-gpt/internal/store/docstore"
	"github.com/egt-labs/egt-gpt/internal/store/rabbitmq"
)

// Failed jobs cycle through the retry queue this many times before landing
// in the DLQ.
const maxAttempts = 3

type jobMsg struct {
	JobID string `json:"job_id"`
}

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	logger := logging.New("worker")
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	docs := docstore.NewStore(gdb)
	hist := history.NewStore(docs)
	jobs := conversation.NewJobRepo(gdb)

	provider := ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ChatTimeout)

	models := ai.NewModelTable(cfg.DefaultDeployment)
	models.Register("gpt-4", cfg.GPT4Deployment)
	models.Register("gpt-3.5-turbo", cfg.GPT35Deployment)
	models.Register("gpt-35-turbo-16k", cfg.GPT35Deployment)

	params := ai.GenerationParams{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
		Stop:        cfg.StopSequence,
	}

	svc := conversation.NewService(hist, provider, models, params, cfg.SystemMessage, cfg.TitleMaxTokens, logger)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("rabbit dial")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal().Err(err).Msg("rabbit channel")
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		logger.Fatal().Err(err).Msg("queue declare")
	}

	// Retries go out on their own channel; the consume channel is busy.
	pubCh, err := conn.Channel()
	if err != nil {
		logger.Fatal().Err(err).Msg("publish channel")
	}
	defer pubCh.Close()
	retrier := rabbitmq.NewRetrier(pubCh, cfg.RabbitQueue)

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		logger.Fatal().Err(err).Msg("qos")
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("consume")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("queue", cfg.RabbitQueue).Int("concurrency", concurrency).Msg("worker started")

	// worker pool
	deliveries := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := logger.With().Int("worker", workerID).Logger()
			for d := range deliveries {
				var m jobMsg
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					wlog.Error().Err(err).Msg("bad message")
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, svc, jobs, m.JobID); err != nil {
					attempt := rabbitmq.Attempts(d.Headers) + 1
					wlog.Error().Err(err).Str("job_id", m.JobID).Int("attempt", attempt).Dur("cost", time.Since(start)).Msg("job failed")
					if attempt < maxAttempts {
						if rerr := retrier.Retry(ctx, d); rerr == nil {
							_ = d.Ack(false)
							continue
						}
						wlog.Error().Str("job_id", m.JobID).Msg("retry publish failed")
					}
					// out of attempts: reject to the DLQ
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					wlog.Error().Err(err).Str("job_id", m.JobID).Msg("ack failed")
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker shutting down")
			close(deliveries)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				logger.Warn().Msg("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			deliveries <- d
		}
	}
}

func handleJob(ctx context.Context, svc *conversation.Service, jobs *conversation.JobRepo, jobID string) error {
	_ = jobs.MarkJobRunning(ctx, jobID)

	j, err := jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	if err := svc.Retitle(ctx, j.UserID, j.ConversationID); err != nil {
		_ = jobs.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	return jobs.MarkJobSucceeded(ctx, jobID)
}
