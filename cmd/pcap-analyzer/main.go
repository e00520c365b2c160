package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"netsentry/internal/batch"
	"netsentry/internal/config"
	"netsentry/internal/detect"
	"netsentry/internal/feature"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	output := flag.String("o", "", "Write the JSON report to this file instead of stdout.")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: pcap-analyzer [flags] <path_to_pcap_file>")
		flag.Usage()
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	analyzer := batch.NewAnalyzer(cfg.Batch)

	// The per-packet detectors are optional for offline runs; the flow
	// heuristics and the summary work without them.
	if cfg.Batch.RunDetectors {
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
			if m, err := detect.LoadLogisticModel(cfg.Detect.ClassifierPath); err == nil {
				classifier = detect.NewClassifier(m, cfg.Detect.ClassificationThreshold)
			} else {
				log.Printf("Classifier not loaded: %v", err)
				classifier = detect.NewClassifier(nil, cfg.Detect.ClassificationThreshold)
			}
		} else {
			classifier = detect.NewClassifier(nil, cfg.Detect.ClassificationThreshold)
		}
		orch := detect.NewOrchestrator(matcher, scorer, classifier, extractor.Logins(), nil, 0)
		analyzer.WithPipeline(extractor, orch)
	}

	report, err := analyzer.Analyze(context.Background(), pcapFilePath)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode report: %v", err)
	}

	if *output != "" {
		if err := os.WriteFile(*output, data, 0o644); err != nil {
			log.Fatalf("Failed to write report: %v", err)
		}
		log.Printf("Report written to %s (risk %d/%s)", *output, report.Risk.Score, report.Risk.Level)
		return
	}
	fmt.Println(string(data))
}
