package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"quickcart/internal/config"
	"quickcart/internal/domain"
	"quickcart/internal/infrastructure/payment"
	"quickcart/internal/repo"
	"quickcart/internal/service"
	"quickcart/internal/worker"
)

const (
	codBuyers     = 25
	initialStock  = 15
	cardBuyers    = 20
	webhookLoss   = 30 // percent of deliveries dropped
	webhookSecret = "whsec_simulated"
	baseURL       = "http://localhost:3000"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "simulation failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadStore()
	if err != nil {
		return err
	}
	st, err := repo.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Health.Close()

	processor := payment.NewSimulatedProcessor(webhookSecret, webhookLoss)
	stock := service.NewStockService(st.Products)
	orders := service.NewOrderService(st.Orders, st.Products, stock, nil, cfg.Currency)
	checkout := service.NewCheckoutService(st.Products, orders, processor, nil, baseURL, cfg.Currency)
	webhooks := service.NewWebhookService(processor, st.Orders, orders, nil)

	product := domain.Product{
		ID:       "sim-" + uuid.NewString()[:8],
		Name:     "Limited Tee",
		Price:    decimal.NewFromInt(500),
		Discount: decimal.NewFromInt(10),
		Stock:    lo.ToPtr[int64](initialStock),
	}
	if err := st.Products.Upsert(ctx, product); err != nil {
		return err
	}

	if err := oversell(ctx, checkout, st.Products, product.ID); err != nil {
		return err
	}
	return lostWebhooks(ctx, checkout, webhooks, processor, st.Orders, product.ID)
}

// oversell fires more concurrent COD orders than there is stock.
func oversell(ctx context.Context, checkout service.CheckoutService, products repo.ProductRepo, productID string) error {
	fmt.Printf("--- COD: %d buyers racing for %d units ---\n", codBuyers, initialStock)

	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for i := range codBuyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := checkout.BeginCheckout(ctx,
				[]domain.LineItem{{ProductID: productID, Quantity: 1}},
				buyer(domain.PaymentCOD))
			if err != nil {
				fmt.Printf("[%02d] FAILED: %v\n", i+1, err)
				return
			}
			created.Add(1)
		}()
	}
	wg.Wait()

	p, err := products.FindByID(ctx, productID)
	if err != nil {
		return err
	}
	fmt.Printf("    -> orders created: %d, stock left: %d (never below zero)\n", created.Load(), lo.FromPtr(p.Stock))
	fmt.Println("---------------------------------------------------")
	return nil
}

// lostWebhooks pays card sessions whose notifications partly go missing,
// replays the ones that arrive, then lets the sweep recover the rest.
func lostWebhooks(
	ctx context.Context,
	checkout service.CheckoutService,
	webhooks service.WebhookService,
	processor *payment.SimulatedProcessor,
	orders repo.OrderRepo,
	productID string,
) error {
	fmt.Printf("--- CARD: %d payments, %d%% of webhooks lost ---\n", cardBuyers, webhookLoss)

	sessions := make([]string, 0, cardBuyers)
	lost := 0
	for i := range cardBuyers {
		out, err := checkout.BeginCheckout(ctx,
			[]domain.LineItem{{ProductID: productID, Quantity: 1}},
			buyer(domain.PaymentCard))
		if err != nil {
			return err
		}
		sessionID := out.RedirectURL[strings.LastIndex(out.RedirectURL, "/")+1:]
		sessions = append(sessions, sessionID)

		payload, sig, delivered, err := processor.Pay(sessionID)
		if err != nil {
			return err
		}
		if !delivered {
			lost++
			fmt.Printf("[%02d] %s paid, webhook LOST\n", i+1, sessionID)
			continue
		}
		// processors deliver at least once
		for range 2 {
			if err := webhooks.HandleEvent(ctx, payload, sig); err != nil {
				fmt.Printf("[%02d] webhook FAILED: %v\n", i+1, err)
			}
		}
		fmt.Printf("[%02d] %s paid, webhook delivered twice\n", i+1, sessionID)
	}

	missing := countMissing(ctx, orders, sessions)
	fmt.Printf("    -> before sweep: %d lost webhooks, %d paid sessions without an order\n", lost, missing)

	sweeper := worker.NewReconciliationWorker(processor, webhooks, time.Minute, time.Hour)
	recovered, err := sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("    -> sweep recovered %d orders, %d still missing\n", recovered, countMissing(ctx, orders, sessions))
	return nil
}

func countMissing(ctx context.Context, orders repo.OrderRepo, sessions []string) int {
	return lo.CountBy(sessions, func(id string) bool {
		ok, err := orders.ExistsBySessionID(ctx, id)
		return err != nil || !ok
	})
}

func buyer(method domain.PaymentMethod) domain.Metadata {
	name := gofakeit.Name()
	return domain.Metadata{
		CustomerName:  name,
		CustomerEmail: gofakeit.Email(),
		ClerkUserID:   "user_" + gofakeit.UUID()[:8],
		Address: &domain.Address{
			Name:    name,
			Address: gofakeit.Street(),
			City:    gofakeit.City(),
			State:   gofakeit.State(),
			Zip:     gofakeit.Zip(),
		},
		PaymentMethod: method,
	}
}
