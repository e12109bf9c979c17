package weights

import (
	"context"
	"time"

	"github.com/flyteorg/flytestdlib/logger"
	"github.com/flyteorg/flytestdlib/promutils"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/flyteorg/flowcompiler/pkg/flowgraph"
)

type refresherMetrics struct {
	RefreshLatency promutils.StopWatch
	RefreshFailure prometheus.Counter
	EdgesUpdated   prometheus.Counter
	UnknownEdges   prometheus.Counter
	InvalidWeights prometheus.Counter
}

// Refresher periodically copies edge loads from a LoadSource onto the flow graph edge weights.
type Refresher struct {
	source   LoadSource
	mutator  flowgraph.Mutator
	interval time.Duration
	metrics  *refresherMetrics
}

// Refresh applies one snapshot of the load source. Loads of unknown edges and invalid loads are skipped.
func (r *Refresher) Refresh(ctx context.Context) error {
	timer := r.metrics.RefreshLatency.Start()
	defer timer.Stop()

	loads, err := r.source.Load(ctx)
	if err != nil {
		r.metrics.RefreshFailure.Inc()
		logger.Errorf(ctx, "failed to load edge weights: %v", err)
		return err
	}

	ids := maps.Keys(loads)
	slices.Sort(ids)
	return r.mutator.Mutate(func(g flowgraph.FlowGraph) error {
		for _, id := range ids {
			if _, ok := g.GetEdge(id); !ok {
				r.metrics.UnknownEdges.Inc()
				logger.Debugf(ctx, "ignoring load of unknown flow edge [%s]", id)
				continue
			}

			if err := g.SetEdgeWeight(id, loads[id]); err != nil {
				r.metrics.InvalidWeights.Inc()
				logger.Warnf(ctx, "failed to update weight of flow edge [%s]: %v", id, err)
				continue
			}

			r.metrics.EdgesUpdated.Inc()
		}

		return nil
	})
}

// Start refreshes the weights every interval until ctx is done.
func (r *Refresher) Start(ctx context.Context) {
	logger.Infof(ctx, "starting edge weight refresher, interval [%v]", r.interval)
	go wait.UntilWithContext(ctx, func(ctx context.Context) {
		_ = r.Refresh(ctx)
	}, r.interval)
}

func NewRefresher(source LoadSource, mutator flowgraph.Mutator, interval time.Duration, scope promutils.Scope) *Refresher {
	weightsScope := scope.NewSubScope("weights")
	return &Refresher{
		source:   source,
		mutator:  mutator,
		interval: interval,
		metrics: &refresherMetrics{
			RefreshLatency: weightsScope.MustNewStopWatch("refresh", "Time to refresh the edge weights", time.Millisecond),
			RefreshFailure: weightsScope.MustNewCounter("refresh_failure", "Number of failed edge weight refreshes"),
			EdgesUpdated:   weightsScope.MustNewCounter("edges_updated", "Number of edge weight updates"),
			UnknownEdges:   weightsScope.MustNewCounter("unknown_edges", "Number of loads reported for unknown edges"),
			InvalidWeights: weightsScope.MustNewCounter("invalid_weights", "Number of loads rejected as edge weight"),
		},
	}
}
