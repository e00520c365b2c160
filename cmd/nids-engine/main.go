package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netsentry/internal/api"
	"netsentry/internal/cache"
	"netsentry/internal/capture"
	"netsentry/internal/config"
	"netsentry/internal/dedup"
	"netsentry/internal/detect"
	"netsentry/internal/engine"
	"netsentry/internal/feature"
	"netsentry/internal/model"
	"netsentry/internal/notification"
	"netsentry/internal/probe"
	"netsentry/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	log.Println("Starting nids-engine...")

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	stats := model.NewCaptureStats()

	// 2. Alert store: ClickHouse when enabled, bounded memory otherwise.
	var alertStore model.AlertStore
	if cfg.Store.Enabled {
		ch, err := store.NewClickHouse(cfg.Store)
		if err != nil {
			log.Printf("ClickHouse unavailable, falling back to in-memory store: %v", err)
			stats.AddDegraded("alert store is in-memory only")
			alertStore = store.NewMemory(0)
		} else {
			defer ch.Close()
			alertStore = ch
		}
	} else {
		alertStore = store.NewMemory(0)
	}

	// 3. Cache in front of the store's recency checks.
	dedupWindow := config.Duration(cfg.Detect.DedupWindow, 5*time.Minute)
	var kv model.Cache
	if cfg.Cache.Enabled {
		r, err := cache.NewRedis(cfg.Cache.Addr, cfg.Cache.DB)
		if err != nil {
			log.Printf("Redis unavailable, using in-process cache: %v", err)
			kv = cache.NewMemory()
		} else {
			defer r.Close()
			kv = r
		}
	} else {
		kv = cache.NewMemory()
	}
	alertStore = store.NewCaching(alertStore, kv, dedupWindow)

	// 4. Detection pipeline.
	extractor := feature.NewWithDefaults()

	windowSpan := config.Duration(cfg.Detect.WindowSpan, time.Minute)
	matcher := detect.NewSignatureMatcher(cfg.Detect.WindowPackets, windowSpan)

	scorer := detect.NewAnomalyScorer(detect.AnomalyConfig{
		MinSamples: cfg.Detect.MinSamplesForTraining,
		Threshold:  cfg.Detect.AnomalyThreshold,
		ModelPath:  cfg.Detect.ModelPath,
	})
	if cfg.Detect.ModelPath != "" {
		if err := scorer.LoadPersisted(); err != nil {
			log.Printf("No persisted anomaly model loaded: %v", err)
		}
	}

	var classifier *detect.Classifier
	if cfg.Detect.ClassifierPath != "" {
		m, err := detect.LoadLogisticModel(cfg.Detect.ClassifierPath)
		if err != nil {
			log.Printf("Classifier not loaded, classification stage disabled: %v", err)
			classifier = detect.NewClassifier(nil, cfg.Detect.ClassificationThreshold)
		} else {
			classifier = detect.NewClassifier(m, cfg.Detect.ClassificationThreshold)
		}
	} else {
		classifier = detect.NewClassifier(nil, cfg.Detect.ClassificationThreshold)
	}

	var collector model.SampleCollector
	if cfg.Detect.SamplePath != "" {
		fc, err := store.NewFileSampleCollector(cfg.Detect.SamplePath)
		if err != nil {
			log.Printf("Sample collector disabled: %v", err)
		} else {
			defer fc.Close()
			collector = fc
		}
	}

	retrainEvery := config.Duration(cfg.Detect.RetrainInterval, time.Hour)
	orch := detect.NewOrchestrator(matcher, scorer, classifier, extractor.Logins(), collector, retrainEvery)
	deduper := dedup.New(alertStore, dedupWindow)

	// 5. Optional collaborators.
	opts := engine.Options{}
	if len(cfg.Capture.WhitelistIPs) > 0 || len(cfg.Capture.WhitelistPorts) > 0 {
		wl, err := capture.NewWhitelist(cfg.Capture.WhitelistIPs, cfg.Capture.WhitelistPorts)
		if err != nil {
			log.Fatalf("Invalid whitelist: %v", err)
		}
		opts.Whitelist = wl
	}
	if cfg.NATS.Enabled {
		pub, err := probe.NewPublisher(cfg.NATS)
		if err != nil {
			log.Printf("NATS unavailable, detection fan-out disabled: %v", err)
		} else {
			defer pub.Close()
			opts.Publisher = pub
		}
	}
	if cfg.Notifier.Enabled && cfg.Notifier.SMTP.Host != "" {
		notifier := notification.NewEmailNotifier(cfg.Notifier.SMTP)
		checkInterval := config.Duration(cfg.Notifier.CheckInterval, 5*time.Minute)
		opts.Digest = notification.NewDigest(notifier, checkInterval)
	}

	// 6. Start the pipeline and the API server.
	mgr := engine.NewManager(cfg, extractor, orch, deduper, stats, opts)
	mgr.Start()

	apiServer := api.NewServer(cfg.API.ListenAddr, stats)
	apiServer.Start()

	// 7. Wait for a shutdown signal.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, stopping engine...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("API server shutdown error: %v", err)
	}
	mgr.Stop()
	log.Println("Shutdown complete.")
}
