package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	config := &OrchestratorConfig{}
	flag.IntVar(&config.NumParticipants, "participants", 5, "Number of participants")
	flag.IntVar(&config.BasePort, "port", 8000, "Base port for services")
	flag.DurationVar(&config.Window, "window", 10*time.Second, "Time until submissions close")
	flag.BoolVar(&config.UseTDX, "tdx", false, "Use real TDX attestation")
	flag.StringVar(&config.RemoteTDXURL, "tdx-url", "", "Remote TDX attestation service URL")
	flag.StringVar(&config.MeasurementsURL, "measurements-url", "", "URL for allowed measurements")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	orchestrator := NewOrchestrator(config, log)
	defer orchestrator.Shutdown()

	if err := orchestrator.Deploy(ctx); err != nil {
		fmt.Printf("Deployment failed: %v\n", err)
		os.Exit(1)
	}

	if err := orchestrator.RunParticipants(ctx); err != nil {
		fmt.Printf("Participants failed: %v\n", err)
		os.Exit(1)
	}

	winner, err := orchestrator.RunEvaluation(ctx)
	if err != nil {
		fmt.Printf("Evaluation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nCompetition completed. Winner: %s\n", winner)
}
