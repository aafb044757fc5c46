package bootstrap

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/yclients-mcp/internal/availability"
	"github.com/wolfman30/yclients-mcp/internal/booking"
	appconfig "github.com/wolfman30/yclients-mcp/internal/config"
	"github.com/wolfman30/yclients-mcp/internal/observability/metrics"
	"github.com/wolfman30/yclients-mcp/internal/tools"
	"github.com/wolfman30/yclients-mcp/internal/yclients"
	"github.com/wolfman30/yclients-mcp/pkg/logging"
)

// BuildToolRegistry wires the backend gateway, the availability engine and the
// booking orchestrator into the registry of booking tools.
func BuildToolRegistry(cfg *appconfig.Config, reg prometheus.Registerer, logger *logging.Logger) (*tools.Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	client := yclients.NewAPIClient(
		cfg.YClientsBaseURL,
		cfg.YClientsBearerToken,
		cfg.YClientsCompanyID,
		logger.With("component", "yclients"),
		yclients.WithTimeout(cfg.YClientsTimeout),
		yclients.WithMetrics(metrics.NewBackendMetrics(reg)),
	)
	engine := availability.NewEngine(client, logger.With("component", "availability"),
		availability.WithConcurrency(cfg.SearchConcurrency),
	)
	orchestrator := booking.NewOrchestrator(client, engine, client.CompanyID(), logger.With("component", "booking"),
		booking.WithLocation(loc),
	)
	handlers := tools.NewHandlers(client, orchestrator, engine, logger, loc)

	registry := tools.NewRegistry(logger, metrics.NewToolMetrics(reg), handlers.Tools()...)
	logger.Info("booking tools registered",
		"tools", registry.Names(),
		"company_id", cfg.YClientsCompanyID,
		"timezone", loc.String(),
	)
	return registry, nil
}
