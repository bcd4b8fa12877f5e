package metrics

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	m := NewMetrics("forest-test")
	m.RegisterBuildInfo("forest", "v0.1.0")
	m.RegisterBuildInfo("forest", "v0.2.0")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BuildInfo.WithLabelValues("forest", "v0.1.0", runtime.Version())))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BuildInfo))

	m.RegisterArtifactSizeMetrics()
	m.RegisterArtifactSizeMetrics()
	m.ArtifactWriteBytes.WithLabelValues("binary").Observe(2048)
	assert.Equal(t, 1, testutil.CollectAndCount(m.ArtifactWriteBytes))

	var nilMetrics *Metrics
	assert.NotPanics(t, nilMetrics.RegisterArtifactSizeMetrics)
}

func TestHandlerServesRegistry(t *testing.T) {
	m := NewMetrics("forest-test")
	m.RegisterBuildInfo("", "v1.2.3")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `forest_build_info{go_version="`+runtime.Version()+`",service="unknown",version="v1.2.3"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
