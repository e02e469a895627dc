// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package monitoring

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
}

type Manager struct {
	telemetry *TelemetryManager
	metrics   *BridgeMetrics
	config    Config
}

func NewManager(logger *slog.Logger, config Config) (*Manager, error) {
	telemetry, err := NewTelemetryManager(logger, TelemetryConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry manager: %w", err)
	}

	meter := telemetry.GetMeter("github.com/MadsRC/llmbridge")
	metrics, err := NewBridgeMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge metrics: %w", err)
	}

	return &Manager{
		telemetry: telemetry,
		metrics:   metrics,
		config:    config,
	}, nil
}

func (m *Manager) GetBridgeMetrics() *BridgeMetrics {
	return m.metrics
}

func (m *Manager) GetMeter(instrumentationName string) metric.Meter {
	return m.telemetry.GetMeter(instrumentationName)
}

func (m *Manager) Shutdown(ctx context.Context) error {
	return m.telemetry.Shutdown(ctx)
}
