package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/api/info/:accessKey", func(c *gin.Context) { c.Status(http.StatusGone) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/info/:accessKey", "410"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/info/SecretKey123", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/info/:accessKey", "410"))
	if after-before != 1 {
		t.Fatalf("expect one request counted under the template, got %v", after-before)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	if testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")) < 1 {
		t.Fatal("expect unmatched route to be counted")
	}
}

func TestDomainCounters(t *testing.T) {
	before := testutil.ToFloat64(accessDeniedTotal.WithLabelValues(ReasonExpired))
	ObserveDenied(ReasonExpired)
	if got := testutil.ToFloat64(accessDeniedTotal.WithLabelValues(ReasonExpired)); got-before != 1 {
		t.Fatalf("expect denied counter +1, got %v", got-before)
	}

	uploads := testutil.ToFloat64(uploadsTotal)
	bytes := testutil.ToFloat64(uploadBytesTotal)
	ObserveUpload(42)
	if testutil.ToFloat64(uploadsTotal)-uploads != 1 || testutil.ToFloat64(uploadBytesTotal)-bytes != 42 {
		t.Fatal("upload counters not updated")
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ObserveRevocation()
	r := gin.New()
	r.GET("/metrics", Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expect 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "fileshare_revocations_total") {
		t.Fatal("revocation counter missing from exposition")
	}
}
