package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tmc/langchaingo/llms/openai"

	"quickcart/internal/assistant"
	"quickcart/internal/cache"
	"quickcart/internal/config"
	"quickcart/internal/infrastructure/payment"
	"quickcart/internal/queue"
	"quickcart/internal/repo"
	"quickcart/internal/server"
	"quickcart/internal/service"
	"quickcart/internal/worker"
)

const (
	deliveryLockTTL  = 2 * time.Minute
	conversationTTL  = 24 * time.Hour
	stockRetryGroup  = "quickcart-stock-retry"
	shutdownDeadline = 15 * time.Second
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("storefront exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := repo.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	defer st.Health.Close()
	slog.Info("store ready", "driver", cfg.Driver)

	var (
		lock    service.DeliveryLock
		history assistant.History
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable at startup, continuing", "addr", cfg.Redis.Addr, "error", err)
		}
		lock = cache.NewDeliveryLock(client, deliveryLockTTL)
		history = cache.NewConversationStore(client, conversationTTL)
	}

	stock := service.NewStockService(st.Products)

	var (
		retry       service.StockRetryQueue
		retryWorker *worker.StockRetryWorker
	)
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := queue.NewStockPublisher(cfg.Kafka.StockTopic, cfg.Kafka.Brokers...)
		defer publisher.Close()
		retry = publisher
		retryWorker = worker.NewStockRetryWorker(stock, publisher, cfg.Kafka.StockTopic, stockRetryGroup, cfg.Kafka.Brokers...)
		defer retryWorker.Close()
	}

	card := payment.NewStripeProcessor(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)

	var mobile payment.MobileMoneyGateway
	if cfg.MobileMoney.APIURL != "" {
		mobile = payment.NewMobileMoneyClient(cfg.MobileMoney.APIURL, cfg.MobileMoney.APIKey, &http.Client{Timeout: 20 * time.Second})
	}

	orders := service.NewOrderService(st.Orders, st.Products, stock, retry, cfg.Currency)
	checkout := service.NewCheckoutService(st.Products, orders, card, mobile, cfg.PublicBaseURL, cfg.Currency)
	webhooks := service.NewWebhookService(card, st.Orders, orders, lock)

	var asst assistant.Assistant
	if cfg.Assistant.OpenAIKey != "" {
		llm, err := openai.New(
			openai.WithModel(cfg.Assistant.Model),
			openai.WithToken(cfg.Assistant.OpenAIKey),
		)
		if err != nil {
			return fmt.Errorf("openai.New: %w", err)
		}
		if asst, err = assistant.New(llm, st.Products, history, cfg.Currency); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	reconciler := worker.NewReconciliationWorker(card, webhooks, cfg.ReconcileInterval, cfg.ReconcileLookback)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reconciler.Run(ctx)
	}()
	if retryWorker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			retryWorker.Run(ctx)
		}()
	}

	router := server.NewRouter(server.Dependencies{
		Checkout:  checkout,
		Orders:    orders,
		Webhooks:  webhooks,
		Products:  st.Products,
		Assistant: asst,
		Store:     st.Health,
	})
	srv := server.NewHTTPServer(":"+cfg.Port, router)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	wg.Wait()
	return nil
}
