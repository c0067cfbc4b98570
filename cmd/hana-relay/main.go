package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CardSorting/hana-relay/core/correlation"
	"github.com/CardSorting/hana-relay/core/credit"
	"github.com/CardSorting/hana-relay/core/deliver"
	"github.com/CardSorting/hana-relay/core/dispatch"
	"github.com/CardSorting/hana-relay/core/imagine"
	"github.com/CardSorting/hana-relay/core/infra/buildinfo"
	"github.com/CardSorting/hana-relay/core/infra/bus"
	"github.com/CardSorting/hana-relay/core/infra/config"
	infraMetrics "github.com/CardSorting/hana-relay/core/infra/metrics"
	"github.com/CardSorting/hana-relay/core/ops"
)

func main() {
	log.Println("hana relay starting...")
	buildinfo.Log("hana-relay")

	cfg := config.Load()

	tuning, err := config.LoadTuning(cfg.TuningPath)
	if err != nil {
		log.Printf("using default tuning (could not load %s): %v", cfg.TuningPath, err)
		tuning = config.DefaultTuning()
	}

	metrics := infraMetrics.NewProm("hana_relay")

	natsBus, err := bus.New(cfg.NatsURL)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer natsBus.Close()

	if err := natsBus.AssertQueues(tuning.Queues.Work, tuning.Queues.Result); err != nil {
		log.Fatalf("failed to assert queues: %v", err)
	}

	ledger, err := credit.NewRedisLedger(credit.RedisOptions{
		URL:            cfg.RedisURL,
		QueryCost:      tuning.Credit.QueryCost,
		InitialBalance: tuning.Credit.InitialBalance,
	})
	if err != nil {
		log.Fatalf("failed to connect to Redis for credit ledger: %v", err)
	}
	defer ledger.Close()

	cache := correlation.New(correlation.Options{
		TTL:           tuning.CacheTTL(),
		SweepInterval: tuning.SweepInterval(),
		Metrics:       metrics,
	})
	defer cache.Close()

	dispatcher, err := dispatch.New(dispatch.Options{
		Bus:         natsBus,
		Ledger:      ledger,
		Cache:       cache,
		WorkSubject: tuning.Queues.Work,
		Metrics:     metrics,
	})
	if err != nil {
		log.Fatalf("failed to build dispatcher: %v", err)
	}

	var messenger deliver.Messenger
	if cfg.DeliveryURL != "" {
		messenger = &deliver.WebhookMessenger{URL: cfg.DeliveryURL}
	} else {
		log.Println("no delivery endpoint configured, deliveries go to the log")
		messenger = deliver.LogMessenger{}
	}

	consumer, err := deliver.New(deliver.Options{
		Cache:     cache,
		Messenger: messenger,
		Retry: deliver.Policy{
			MaxAttempts: tuning.Delivery.MaxAttempts,
			BaseDelay:   tuning.DeliveryBaseDelay(),
			MaxDelay:    tuning.DeliveryMaxDelay(),
		},
		Metrics: metrics,
	})
	if err != nil {
		log.Fatalf("failed to build result consumer: %v", err)
	}
	if err := consumer.Start(natsBus, tuning.Queues.Result, "hana-relay"); err != nil {
		log.Fatalf("failed to subscribe to results: %v", err)
	}

	tap := ops.NewTap()
	defer tap.Close()
	tap.Start(natsBus, tuning.Queues.Work, tuning.Queues.Result)

	mux := http.NewServeMux()
	mux.Handle("/metrics", infraMetrics.Handler())
	mux.HandleFunc("/events", tap.HandleStream)
	mux.Handle("/v1/submit", dispatch.SubmitHandler(dispatcher))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !natsBus.IsConnected() {
			http.Error(w, "bus disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if cfg.ImagineURL != "" {
		svc := imagine.NewService(imagine.Options{
			Provider: &imagine.HTTPProvider{CreateURL: cfg.ImagineURL},
			Watcher: &imagine.Watcher{
				Interval:    tuning.PollInterval(),
				MaxAttempts: tuning.Poll.MaxAttempts,
			},
			Workers: tuning.Poll.Workers,
		})
		defer svc.Close()
		mux.Handle("/v1/imagine", imagineHandler(svc, cache, messenger))
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("relay http on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	log.Println("relay running. waiting for signals...")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("relay shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
}

type imagineRequest struct {
	UserID string `json:"userId"`
	Prompt string `json:"prompt"`
}

// imagineHandler queues an image job and, when it resolves, routes the image
// URL back through the requester's correlated channel.
func imagineHandler(svc *imagine.Service, cache *correlation.Cache, messenger deliver.Messenger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req imagineRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		channelID := cache.ChannelID(req.UserID)
		if channelID == "" {
			http.Error(w, "no active channel for user", http.StatusConflict)
			return
		}

		userID, prompt := req.UserID, req.Prompt
		err := svc.Submit(imagine.Task{
			UserID: userID,
			Prompt: prompt,
			Done: func(imageURL string, err error) {
				note := deliver.Note{Title: "Hana Imagine", UserID: userID, Query: prompt}
				if err != nil {
					note.Response = "Image generation failed: " + err.Error()
				} else {
					note.Response = imageURL
				}
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := messenger.Deliver(ctx, channelID, note); err != nil {
					log.Printf("imagine delivery failed for user %s: %v", userID, err)
				}
			},
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
}
