package server

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func newTestEcho(t *testing.T) (*echo.Echo, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	e := echo.New()
	Setup(e, logger, "test", prometheus.NewRegistry())
	return e, hook
}

func TestSetupDecompressesGzipBodies(t *testing.T) {
	e, _ := newTestEcho(t)
	e.POST("/echo", func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, string(body))
	})

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(`[{"type":"delete-todo"}]`)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/echo", &buf)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != `[{"type":"delete-todo"}]` {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestSetupUsesSonicSerializer(t *testing.T) {
	e, _ := newTestEcho(t)
	e.GET("/json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"todos": []string{}})
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/json", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != `{"todos":[]}` {
		t.Fatalf("unexpected body %q", got)
	}
	if _, ok := e.JSONSerializer.(SonicSerializer); !ok {
		t.Fatalf("expected sonic serializer, got %T", e.JSONSerializer)
	}
}

func TestSetupExposesMetricsAndLogsRequests(t *testing.T) {
	e, hook := newTestEcho(t)
	e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Data["uri"] != "/ping" || entry.Data["status"] != http.StatusNoContent {
		t.Fatalf("expected request log entry, got %#v", entry)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
}
