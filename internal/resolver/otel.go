package resolver

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/spotterhq/spotter/internal/resolver"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	queries        metric.Int64Counter
	sourceFailures metric.Int64Counter
	duration       metric.Float64Histogram
}

func newMetrics(m metric.Meter) (*metrics, error) {
	var (
		out metrics
		err error
	)

	out.queries, err = m.Int64Counter(
		"resolver.queries",
		metric.WithDescription("Resolution queries by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queries counter: %w", err)
	}

	out.sourceFailures, err = m.Int64Counter(
		"resolver.source.failures",
		metric.WithDescription("Candidate source failures and timeouts"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating source failures counter: %w", err)
	}

	out.duration, err = m.Float64Histogram(
		"resolver.duration",
		metric.WithDescription("Time to resolve one query"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return &out, nil
}
