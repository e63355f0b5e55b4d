package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedact(t *testing.T) {
	cases := map[string]string{
		"":                          "",
		"mail jane@example.com now": "mail [REDACTED:email] now",
		"call +6591234567":          "call [REDACTED:phone]",
		"lead 123e4567-e89b-42d3-a456-426614174000": "lead [REDACTED:id]",
		"iphone 13 128gb":           "iphone 13 128gb",
	}
	for in, want := range cases {
		if got := Redact(in); got != want {
			t.Fatalf("Redact(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestRedactingLogger_MasksHeadersAndQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{MaskHeaders: []string{HeaderAPIKey}}))
	r.GET("/agent", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("inside")
		c.Set(identityKey, "key:abc")
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/agent?q=jane@example.com", nil)
	req.Header.Set(requestIDHeader, "rid-7")
	req.Header.Set(HeaderAPIKey, "super-secret")
	req.Header.Set("Authorization", "Bearer super-secret")
	req.Header.Set("X-Note", "reach me at +6591234567")
	r.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if strings.Contains(out, "super-secret") || strings.Contains(out, "jane@example.com") || strings.Contains(out, "91234567") {
		t.Fatalf("sensitive data leaked:\n%s", out)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected scoped + access log lines, got %d:\n%s", len(lines), out)
	}
	var inside, access map[string]any
	_ = json.Unmarshal([]byte(lines[0]), &inside)
	_ = json.Unmarshal([]byte(lines[1]), &access)
	if inside["request_id"] != "rid-7" || inside["path"] != "/agent" {
		t.Fatalf("scoped logger fields missing: %v", inside)
	}
	if access["message"] != "http_request" || access["level"] != "info" || access["identity"] != "key:abc" {
		t.Fatalf("unexpected access log: %v", access)
	}
	headers, _ := access["headers"].(map[string]any)
	if headers["X-Api-Key"] != "[REDACTED]" || headers["Authorization"] != "[REDACTED]" {
		t.Fatalf("headers not masked: %v", headers)
	}
	if access["query"] != "q=[REDACTED:email]" {
		t.Fatalf("query not redacted: %v", access["query"])
	}
}

func TestRedactingLogger_Levels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}))
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })
	r.GET("/err", func(c *gin.Context) {
		_ = c.Error(errSentinel{})
		c.Status(http.StatusOK)
	})

	for _, p := range []string{"/bad", "/boom", "/err", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	var levels []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		levels = append(levels, m["level"].(string)+" "+m["path"].(string))
	}
	want := []string{"warn /bad", "error /boom", "error /err", "warn /missing"}
	if strings.Join(levels, ",") != strings.Join(want, ",") {
		t.Fatalf("levels = %v; want %v", levels, want)
	}
}

type errSentinel struct{}

func (errSentinel) Error() string { return "boom" }
