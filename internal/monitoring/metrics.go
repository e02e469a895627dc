// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BridgeMetrics carries the instruments for the request pipeline and the
// credential lifecycle. All Record methods are nil-receiver safe so callers
// never have to branch on whether metrics are configured.
type BridgeMetrics struct {
	requestsAcceptedTotal metric.Int64Counter
	requestsRejectedTotal metric.Int64Counter
	upstreamLatency       metric.Float64Histogram
	upstreamErrorsTotal   metric.Int64Counter
	credentialOpsTotal    metric.Int64Counter
	orphanRepairsTotal    metric.Int64Counter
	catalogRefreshesTotal metric.Int64Counter
}

func NewBridgeMetrics(meter metric.Meter) (*BridgeMetrics, error) {
	requestsAcceptedTotal, err := meter.Int64Counter(
		"bridge_requests_accepted_total",
		metric.WithDescription("Requests that passed local validation and were forwarded"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requests_accepted_total counter: %w", err)
	}

	requestsRejectedTotal, err := meter.Int64Counter(
		"bridge_requests_rejected_total",
		metric.WithDescription("Requests rejected before any network call"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requests_rejected_total counter: %w", err)
	}

	upstreamLatency, err := meter.Float64Histogram(
		"bridge_upstream_latency_seconds",
		metric.WithDescription("Latency of forwarded upstream calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream_latency histogram: %w", err)
	}

	upstreamErrorsTotal, err := meter.Int64Counter(
		"bridge_upstream_errors_total",
		metric.WithDescription("Upstream transport failures by operation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream_errors_total counter: %w", err)
	}

	credentialOpsTotal, err := meter.Int64Counter(
		"bridge_credential_operations_total",
		metric.WithDescription("Credential lifecycle operations by name and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential_operations_total counter: %w", err)
	}

	orphanRepairsTotal, err := meter.Int64Counter(
		"bridge_credential_orphan_repairs_total",
		metric.WithDescription("Automatic delete-and-recreate repairs of orphaned remote credentials"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orphan_repairs_total counter: %w", err)
	}

	catalogRefreshesTotal, err := meter.Int64Counter(
		"bridge_catalog_refreshes_total",
		metric.WithDescription("Model catalog refreshes by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog_refreshes_total counter: %w", err)
	}

	return &BridgeMetrics{
		requestsAcceptedTotal: requestsAcceptedTotal,
		requestsRejectedTotal: requestsRejectedTotal,
		upstreamLatency:       upstreamLatency,
		upstreamErrorsTotal:   upstreamErrorsTotal,
		credentialOpsTotal:    credentialOpsTotal,
		orphanRepairsTotal:    orphanRepairsTotal,
		catalogRefreshesTotal: catalogRefreshesTotal,
	}, nil
}

func (bm *BridgeMetrics) RecordAccepted(ctx context.Context, model string) {
	if bm == nil {
		return
	}
	bm.requestsAcceptedTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("model", model)),
	)
}

func (bm *BridgeMetrics) RecordRejected(ctx context.Context, model string, reason string) {
	if bm == nil {
		return
	}
	bm.requestsRejectedTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("reason", reason),
		),
	)
}

func (bm *BridgeMetrics) RecordUpstreamLatency(ctx context.Context, operation string, duration time.Duration) {
	if bm == nil {
		return
	}
	bm.upstreamLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("operation", operation)),
	)
}

func (bm *BridgeMetrics) RecordUpstreamError(ctx context.Context, operation string) {
	if bm == nil {
		return
	}
	bm.upstreamErrorsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("operation", operation)),
	)
}

func (bm *BridgeMetrics) RecordCredentialOp(ctx context.Context, operation string, outcome string) {
	if bm == nil {
		return
	}
	bm.credentialOpsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		),
	)
}

func (bm *BridgeMetrics) RecordOrphanRepair(ctx context.Context, removed int64) {
	if bm == nil {
		return
	}
	bm.orphanRepairsTotal.Add(ctx, removed)
}

func (bm *BridgeMetrics) RecordCatalogRefresh(ctx context.Context, outcome string) {
	if bm == nil {
		return
	}
	bm.catalogRefreshesTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}
