package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/Sternrassler/retrieval-services/pkg/cache"
	_ "github.com/Sternrassler/retrieval-services/pkg/client"
	_ "github.com/Sternrassler/retrieval-services/pkg/pipeline"
	_ "github.com/Sternrassler/retrieval-services/pkg/ratelimit"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

// Every documented metric must already be registered: registering a
// collector under the same name has to fail.
func TestAllMetricsRegistered(t *testing.T) {
	for _, m := range All {
		t.Run(m.Name, func(t *testing.T) {
			c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: m.Name, Help: "probe"}, m.Labels)
			if err := Registry.Register(c); err == nil {
				Registry.Unregister(c)
				t.Errorf("%s (package %s) is not registered", m.Name, m.Package)
			}
		})
	}
}

func TestHandler(t *testing.T) {
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "retrieval_pages_total") {
		t.Error("Expected retrieval_pages_total in exposition")
	}
}
