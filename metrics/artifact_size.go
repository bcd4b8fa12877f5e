package metrics

import "github.com/prometheus/client_golang/prometheus"

// RegisterArtifactSizeMetrics 注册模型文件读写大小指标.
func (m *Metrics) RegisterArtifactSizeMetrics() {
	if m == nil || m.ArtifactWriteBytes != nil {
		return
	}

	buckets := prometheus.ExponentialBuckets(1024, 4, 10)
	m.ArtifactWriteBytes = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "model_artifact_write_bytes",
		Help:    "Size of encoded model artifacts written to storage",
		Buckets: buckets,
	}, []string{"format"})
	m.ArtifactReadBytes = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "model_artifact_read_bytes",
		Help:    "Size of encoded model artifacts read from storage",
		Buckets: buckets,
	}, []string{"format"})
}
