package ensemble

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/wyfcoding/forest/metrics"
	"github.com/wyfcoding/forest/worker"
)

const (
	modeSequential = "sequential"
	modeParallel   = "parallel"
)

// Observer 收集森林训练与预测指标，可在多个森林间共享.
type Observer struct {
	fitDuration     *prometheus.HistogramVec
	predictDuration *prometheus.HistogramVec
	treesFitted     prometheus.Counter
	fitFailures     prometheus.Counter
	predictedRows   prometheus.Counter
	pool            *worker.Metrics
}

// NewObserver 在 m 上注册森林与工作池指标，同一注册表只能调用一次.
func NewObserver(m *metrics.Metrics) *Observer {
	return &Observer{
		fitDuration: m.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forest_fit_duration_seconds",
			Help:    "Time spent fitting a forest",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"mode"}),
		predictDuration: m.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forest_predict_duration_seconds",
			Help:    "Time spent computing forest decision scores",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"mode"}),
		treesFitted: m.NewCounter(prometheus.CounterOpts{
			Name: "forest_trees_fitted_total",
			Help: "Trees trained by successful forest fits",
		}),
		fitFailures: m.NewCounter(prometheus.CounterOpts{
			Name: "forest_fit_failures_total",
			Help: "Forest fits that returned an error",
		}),
		predictedRows: m.NewCounter(prometheus.CounterOpts{
			Name: "forest_predicted_rows_total",
			Help: "Rows scored by forest decision functions",
		}),
		pool: worker.NewMetrics(m),
	}
}

func (o *Observer) observeFit(mode string, start time.Time, trees int, err error) {
	if o == nil {
		return
	}
	o.fitDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	if err != nil {
		o.fitFailures.Inc()
		return
	}
	o.treesFitted.Add(float64(trees))
}

func (o *Observer) observePredict(mode string, start time.Time, rows int, err error) {
	if o == nil || err != nil {
		return
	}
	o.predictDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	o.predictedRows.Add(float64(rows))
}

func (o *Observer) poolMetrics() *worker.Metrics {
	if o == nil {
		return nil
	}
	return o.pool
}
