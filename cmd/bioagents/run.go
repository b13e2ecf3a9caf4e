package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/johnbachman/bioagents/internal/agent"
	"github.com/johnbachman/bioagents/internal/api"
	"github.com/johnbachman/bioagents/internal/config"
	"github.com/johnbachman/bioagents/internal/domain"
	"github.com/johnbachman/bioagents/internal/dtda"
	"github.com/johnbachman/bioagents/internal/metrics"
	"github.com/johnbachman/bioagents/internal/transport"
	"github.com/johnbachman/bioagents/pkg/ekb"
	"github.com/johnbachman/bioagents/pkg/external"
)

type agentKind int

const (
	agentDTDA agentKind = iota
	agentBioSense
)

// loadConfig reads the configuration and applies command line overrides.
func loadConfig(opts *runOptions) (*domain.Config, error) {
	manager, err := config.NewManager(opts.configFile)
	if err != nil {
		return nil, err
	}

	cfg := manager.GetConfig()
	if opts.transport != "" {
		cfg.Agent.Transport = opts.transport
	}
	if opts.facilitator != "" {
		cfg.Agent.FacilitatorAddr = opts.facilitator
	}
	if opts.gateway {
		cfg.Gateway.Enabled = true
	}
	if opts.gatewayPort != 0 {
		cfg.Gateway.Port = opts.gatewayPort
	}

	if err := manager.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, kind agentKind, opts *runOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	// stdout carries KQML when the stdio transport is used.
	logger := config.NewLogger(cfg.Logging, os.Stderr)

	var gatewayOpts []api.Option
	if cfg.Metrics.Enabled {
		gatewayOpts = append(gatewayOpts, api.WithMetrics(metrics.EnablePrometheus()))
	}

	processor, err := newProcessor(cfg, logger)
	if err != nil {
		return err
	}

	var handler agent.Handler
	switch kind {
	case agentDTDA:
		d, err := newDTDA(cfg, logger)
		if err != nil {
			return err
		}
		handler = agent.NewDTDAHandler(d, processor, logger)
		gatewayOpts = append(gatewayOpts, api.WithDiseases(d.Diseases()))
	case agentBioSense:
		handler = agent.NewBioSenseHandler(processor, logger)
	default:
		return fmt.Errorf("unknown agent kind %d", kind)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	module := agent.NewModule(handler, cfg.Agent.QueueSize, logger)
	go module.Run(ctx)

	gatewayErr := make(chan error, 1)
	if cfg.Gateway.Enabled {
		server := api.NewServer(cfg.Gateway, logger, []api.Submitter{module}, gatewayOpts...)
		go func() {
			gatewayErr <- server.Start(ctx)
		}()
	}

	tr, err := transport.New(ctx, cfg.Agent, logger)
	if err != nil {
		return err
	}
	defer tr.Close()

	logger.WithFields(logrus.Fields{
		"agent":     module.Name(),
		"transport": tr.GetType(),
		"gateway":   cfg.Gateway.Enabled,
		"version":   version,
	}).Info("Starting agent")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- module.Serve(ctx, tr)
	}()

	select {
	case err = <-serveErr:
	case err = <-gatewayErr:
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping agent")
	}
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.WithField("agent", module.Name()).Info("Agent stopped")
	return nil
}

// newProcessor builds the EKB processor, with HGNC name standardisation
// when enabled.
func newProcessor(cfg *domain.Config, logger *logrus.Logger) (*ekb.Processor, error) {
	if !cfg.EKB.StandardizeNames {
		return ekb.NewProcessor(nil, logger), nil
	}
	hgnc, err := external.NewHGNCClient(cfg.ExternalAPI.HGNC, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create HGNC client: %w", err)
	}
	return ekb.NewProcessor(hgnc, logger), nil
}

// newDTDA wires the statement store and genomics clients behind circuit
// breakers.
func newDTDA(cfg *domain.Config, logger *logrus.Logger) (*dtda.DTDA, error) {
	indra := external.NewINDRAClient(cfg.ExternalAPI.INDRA, logger)
	cbio, err := external.NewCBioPortalClient(cfg.ExternalAPI.CBioPortal, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cBioPortal client: %w", err)
	}

	diseases, err := dtda.LoadDiseaseTable(cfg.DTDA.DiseaseMapFile)
	if err != nil {
		return nil, err
	}

	store := external.NewResilientStatementStore(indra, cfg.CircuitBreaker, logger)
	genomics := external.NewResilientGenomics(cbio, cfg.CircuitBreaker, logger)
	return dtda.New(store, genomics, diseases, cfg.ExternalAPI.INDRA.EvidenceSource, logger), nil
}
