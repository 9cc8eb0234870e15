package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newBrotliRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Brotli())
	return r
}

func TestEventStreamRequestsBypassCompression(t *testing.T) {
	r := newBrotliRouter()
	r.GET("/stream", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Writer.WriteString("data: {\"tick\":1}\n\n")
		c.Writer.Flush()
	})

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Accept-Encoding", "br")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Content-Encoding"); got != "" {
		t.Fatalf("Content-Encoding = %q, want none for event streams", got)
	}
	if !strings.Contains(w.Body.String(), "data: {\"tick\":1}") {
		t.Fatalf("event did not reach the client: %q", w.Body.String())
	}
}

func TestFlushDrainsSmallBufferedWrites(t *testing.T) {
	// Without the Accept header the skip does not apply; Flush itself must
	// still push small writes through instead of holding them below the
	// compression threshold.
	r := newBrotliRouter()
	r.GET("/stream", func(c *gin.Context) {
		c.Writer.WriteString("data: {\"tick\":1}\n\n")
		c.Writer.Flush()
	})

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Accept-Encoding", "br")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), "data: {\"tick\":1}") {
		t.Fatalf("flushed event stuck in buffer: %q", w.Body.String())
	}
	if got := w.Header().Get("Content-Encoding"); got == "br" {
		t.Fatalf("small flushed write must go out uncompressed")
	}
}

func TestLargeResponsesAreCompressed(t *testing.T) {
	r := newBrotliRouter()
	big := strings.Repeat("x", 4096)
	r.GET("/payload", func(c *gin.Context) {
		c.String(http.StatusOK, big)
	})

	req := httptest.NewRequest(http.MethodGet, "/payload", nil)
	req.Header.Set("Accept-Encoding", "br")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Content-Encoding"); got != "br" {
		t.Fatalf("Content-Encoding = %q, want br", got)
	}
	if w.Body.Len() >= len(big) {
		t.Fatalf("body not compressed: %d bytes", w.Body.Len())
	}
}

func TestSmallResponsesStayUncompressed(t *testing.T) {
	r := newBrotliRouter()
	r.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("Accept-Encoding", "br")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Content-Encoding"); got != "" {
		t.Fatalf("Content-Encoding = %q, want none below threshold", got)
	}
	if w.Body.String() != "ok" {
		t.Fatalf("body = %q", w.Body.String())
	}
}
