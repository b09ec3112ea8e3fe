package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err      error
		expected int
	}{
		{&models.StockError{Kind: models.ErrStockConflict}, http.StatusConflict},
		{&models.StockError{Kind: models.ErrInsufficientStock}, http.StatusBadRequest},
		{fmt.Errorf("%w: inbound is already completed", models.ErrInvalidTransition), http.StatusBadRequest},
		{models.ErrInvalidDelta, http.StatusBadRequest},
		{models.ErrLedgerImmutable, http.StatusBadRequest},
		{fmt.Errorf("%w: sku", models.ErrDuplicate), http.StatusConflict},
		{models.ErrInUse, http.StatusConflict},
		{fmt.Errorf("%w: product #9", models.ErrReferenceNotFound), http.StatusNotFound},
		{utils.ErrorRecordNotFound, http.StatusNotFound},
		{&models.ImportError{Kind: models.ErrMissingColumns, Missing: []string{"sku"}}, http.StatusUnprocessableEntity},
		{utils.ErrImportInProgress, http.StatusConflict},
		{utils.ErrorServiceNotReady, http.StatusServiceUnavailable},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusForError(tc.err); got != tc.expected {
			t.Fatalf("statusForError(%v) expected %d, got %d", tc.err, tc.expected, got)
		}
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err      error
		expected string
	}{
		{&models.StockError{Kind: models.ErrStockConflict}, "STOCK_CONFLICT"},
		{&models.StockError{Kind: models.ErrInsufficientStock}, "INSUFFICIENT_STOCK"},
		{models.ErrInvalidTransition, "INVALID_TRANSITION"},
		{&models.ImportError{Kind: models.ErrAmbiguousDate}, "AMBIGUOUS_DATE"},
		{&models.ImportError{Kind: models.ErrReferenceNotFound}, "REFERENCE_NOT_FOUND"},
		{errors.New("other"), ""},
	}
	for _, tc := range cases {
		if got := errorCode(tc.err); got != tc.expected {
			t.Fatalf("errorCode(%v) expected %q, got %q", tc.err, tc.expected, got)
		}
	}
}

func TestRespondError_StockErrorDetails(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/outbounds/1/complete", nil)

	respondError(c, "test", &models.StockError{Kind: models.ErrInsufficientStock, ProductId: 4, Sku: "A-4", Available: 1, Requested: 3})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body struct {
		Error   string `json:"error"`
		Code    string `json:"code"`
		Details struct {
			ProductId int    `json:"product_id"`
			Sku       string `json:"sku"`
			Available int    `json:"available"`
			Requested int    `json:"requested"`
		} `json:"details"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != "INSUFFICIENT_STOCK" || body.Details.Sku != "A-4" || body.Details.Available != 1 || body.Details.Requested != 3 {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestRespondError_HidesInternalErrors(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/products", nil)

	respondError(c, "test", errors.New("dial tcp 10.0.0.1:3306: i/o timeout"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if w.Body.String() != `{"error":"internal server error"}` {
		t.Fatalf("expected a generic message, got %s", w.Body.String())
	}
}

func TestBindOptionalJSON(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		ok       bool
		expected string
	}{
		{"empty chunked body", "", true, ""},
		{"whitespace only", "  \n", true, ""},
		{"note", `{"note":"dock 3"}`, true, "dock 3"},
		{"malformed", `{"note":`, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			req := httptest.NewRequest(http.MethodPost, "/inbounds/1/complete", strings.NewReader(tc.body))
			req.ContentLength = -1
			req.TransferEncoding = []string{"chunked"}
			c.Request = req

			var dest transitionRequest
			if ok := bindOptionalJSON(c, &dest); ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v (body %s)", tc.ok, ok, w.Body.String())
			}
			if !tc.ok {
				if w.Code != http.StatusBadRequest {
					t.Fatalf("expected 400, got %d", w.Code)
				}
				return
			}
			if dest.Note != tc.expected {
				t.Fatalf("expected note %q, got %q", tc.expected, dest.Note)
			}
		})
	}
}

func TestPathId(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-3"} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/products/"+raw, nil)
		c.Params = gin.Params{{Key: "id", Value: raw}}
		if _, ok := pathId(c, "id"); ok {
			t.Fatalf("pathId(%q) expected failure", raw)
		}
		if w.Code != http.StatusBadRequest {
			t.Fatalf("pathId(%q) expected 400, got %d", raw, w.Code)
		}
	}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Params = gin.Params{{Key: "id", Value: "12"}}
	if id, ok := pathId(c, "id"); !ok || id != 12 {
		t.Fatalf("expected 12, got %d", id)
	}
}

func TestQueryHelpers(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/logs?limit=20&offset=-1&archived=true&bad=maybe", nil)

	if got := queryInt(c, "limit", 50); got != 20 {
		t.Fatalf("expected limit 20, got %d", got)
	}
	if got := queryInt(c, "offset", 0); got != 0 {
		t.Fatalf("expected negative offset to fall back, got %d", got)
	}
	if got := queryInt(c, "missing", 7); got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}
	if got := queryBool(c, "archived"); got == nil || !*got {
		t.Fatalf("expected archived=true")
	}
	if got := queryBool(c, "bad"); got != nil {
		t.Fatalf("expected nil for an unparsable bool, got %v", *got)
	}
}

func TestParseOptionalStatus(t *testing.T) {
	if s, err := parseOptionalStatus(nil); s != nil || err != nil {
		t.Fatalf("expected nil, nil for a missing status")
	}
	raw := "completed"
	s, err := parseOptionalStatus(&raw)
	if err != nil || *s != models.ShipmentStatusCompleted {
		t.Fatalf("expected COMPLETED, got %v (%v)", s, err)
	}
	raw = "shipped"
	if _, err := parseOptionalStatus(&raw); !errors.Is(err, models.ErrInvalidRow) {
		t.Fatalf("expected ErrInvalidRow, got %v", err)
	}
}

func TestParseDateField_NamesTheField(t *testing.T) {
	_, err := parseDateField("outbound_date", "03/04/2024")
	if !errors.Is(err, models.ErrAmbiguousDate) {
		t.Fatalf("expected ErrAmbiguousDate, got %v", err)
	}
	if got := err.Error(); len(got) < len("outbound_date") || got[:len("outbound_date")] != "outbound_date" {
		t.Fatalf("expected the field name first, got %q", got)
	}
}

func TestParseDateField_RejectsBareNumbers(t *testing.T) {
	for _, raw := range []string{"2024", "45366", "7", "1.5"} {
		if _, err := parseDateField("inbound_date", raw); !errors.Is(err, models.ErrAmbiguousDate) {
			t.Fatalf("parseDateField(%q) expected ErrAmbiguousDate, got %v", raw, err)
		}
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" https://a.test , ,https://b.test ")
	if len(got) != 2 || got[0] != "https://a.test" || got[1] != "https://b.test" {
		t.Fatalf("unexpected result %v", got)
	}
	if splitAndTrim("  ") != nil {
		t.Fatalf("expected nil for blank input")
	}
}

func TestPositiveEnvInt(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "25")
	if got := positiveEnvInt("RATE_LIMIT_MAX_REQUESTS", 600); got != 25 {
		t.Fatalf("expected 25, got %d", got)
	}
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "0")
	if got := positiveEnvInt("RATE_LIMIT_MAX_REQUESTS", 600); got != 600 {
		t.Fatalf("expected default for 0, got %d", got)
	}
}

func TestCorrelationIdMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(correlationIdMiddleware)
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen, _ = utils.GetCorrelationIdFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("x-correlation-id", "cid-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if seen != "cid-42" || w.Header().Get("x-correlation-id") != "cid-42" {
		t.Fatalf("expected the caller's id to be reused, got %q / %q", seen, w.Header().Get("x-correlation-id"))
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "cid-42" || w.Header().Get("x-correlation-id") != seen {
		t.Fatalf("expected a generated id, got %q", seen)
	}
}

func TestRouter_NotReadyWithoutStorage(t *testing.T) {
	r := newRouter(logrus.New())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("/healthz expected 204, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/products", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before storage is connected, got %d", w.Code)
	}
}

func TestCustomNotFoundHandler(t *testing.T) {
	r := gin.New()
	r.NoRoute(customNotFoundHandler)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound || w.Body.String() != `{"error":"route not found"}` {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}

func TestRateLimitMiddleware_PassesWithoutRedis(t *testing.T) {
	rl := NewRateLimiter(func() *redis.Client { return nil }, 1, 0)
	r := gin.New()
	r.Use(rl.RateLimitMiddleware)
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d expected 200, got %d", i, w.Code)
		}
	}
}
