package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Exit Codes Tests
// =============================================================================

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{CodeUsage, ExitUsage},
		{CodeNotFound, ExitNotFound},
		{CodeAuth, ExitClient},
		{CodeForbidden, ExitClient},
		{CodeClient, ExitClient},
		{CodeRateLimit, ExitRateLimit},
		{CodeNetwork, ExitNetwork},
		{CodeTimeout, ExitTimeout},
		{CodeAPI, ExitAPI},
		{CodeCircuitOpen, ExitUnavailable},
		{CodeBusy, ExitUnavailable},
		{"unknown_code", ExitAPI},
		{"", ExitAPI},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			result := ExitCodeFor(tt.code)
			if result != tt.expected {
				t.Errorf("ExitCodeFor(%q) = %d, want %d", tt.code, result, tt.expected)
			}
		})
	}
}

// =============================================================================
// Error Tests
// =============================================================================

func TestErrorInterface(t *testing.T) {
	err := &Error{Code: CodeUsage, Message: "bad flag", Hint: "see --help"}
	if got := err.Error(); got != "bad flag: see --help" {
		t.Errorf("Error() = %q", got)
	}

	err.Hint = ""
	if got := err.Error(); got != "bad flag" {
		t.Errorf("Error() without hint = %q", got)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := ErrNetwork(cause)

	if !errors.Is(err, cause) {
		t.Error("expected ErrNetwork to unwrap to its cause")
	}
	if err.Hint != cause.Error() {
		t.Errorf("Hint = %q, want cause text", err.Hint)
	}
	if !err.Retryable {
		t.Error("network errors are retryable")
	}
}

func TestErrHTTP(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{http.StatusBadRequest, CodeClient},
		{http.StatusUnauthorized, CodeAuth},
		{http.StatusForbidden, CodeForbidden},
		{http.StatusNotFound, CodeNotFound},
		{http.StatusTooManyRequests, CodeRateLimit},
		{http.StatusUnprocessableEntity, CodeClient},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := ErrHTTP(tt.status, "detail")
			if err.Message != fmt.Sprintf("HTTP %d", tt.status) {
				t.Errorf("Message = %q", err.Message)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
			if err.Retryable {
				t.Error("4xx must not be retryable")
			}
			if err.HTTPStatus != tt.status {
				t.Errorf("HTTPStatus = %d", err.HTTPStatus)
			}
		})
	}
}

func TestErrServer(t *testing.T) {
	err := ErrServer(http.StatusBadGateway, "")
	if err.Message != "HTTP 502" {
		t.Errorf("Message = %q", err.Message)
	}
	if !IsRetryable(err) {
		t.Error("5xx must be retryable")
	}
}

func TestErrTimeout(t *testing.T) {
	err := ErrTimeout(15 * time.Second)
	if err.Message != "request timed out" {
		t.Errorf("Message = %q", err.Message)
	}
	if !strings.Contains(err.Hint, "15s") {
		t.Errorf("Hint should name the timeout, got %q", err.Hint)
	}
	if !IsRetryable(err) {
		t.Error("timeouts must be retryable")
	}
}

func TestErrRateLimit(t *testing.T) {
	err := ErrRateLimit(30 * time.Second)
	if err.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v", err.RetryAfter)
	}
	if !strings.Contains(err.Hint, "30s") {
		t.Errorf("Hint = %q", err.Hint)
	}

	if got := ErrRateLimit(0).Hint; got != "Try again later" {
		t.Errorf("zero Retry-After hint = %q", got)
	}
}

func TestErrCircuitOpenAndBusy(t *testing.T) {
	open := ErrCircuitOpen("quotes.example:443")
	if !strings.Contains(open.Message, "quotes.example:443") {
		t.Errorf("Message = %q", open.Message)
	}
	if IsRetryable(open) {
		t.Error("circuit open must not be retryable")
	}

	busy := ErrBusy(2)
	if busy.Code != CodeBusy || !strings.Contains(busy.Message, "2") {
		t.Errorf("unexpected busy error: %+v", busy)
	}
}

func TestAsErrorWithWrappedOutputError(t *testing.T) {
	inner := ErrHTTP(http.StatusNotFound, "")
	wrapped := fmt.Errorf("fetching dashboard: %w", inner)

	if got := AsError(wrapped); got != inner {
		t.Errorf("AsError should find the wrapped *Error, got %+v", got)
	}
}

func TestAsErrorWithStandardError(t *testing.T) {
	std := errors.New("boom")
	e := AsError(std)

	if e.Code != CodeAPI || e.Message != "boom" {
		t.Errorf("unexpected conversion: %+v", e)
	}
	if !errors.Is(e, std) {
		t.Error("converted error should wrap the original")
	}
}

func TestIsRetryableNonStructured(t *testing.T) {
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}

// =============================================================================
// Writer Tests
// =============================================================================

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"json":     FormatJSON,
		"markdown": FormatMarkdown,
		"md":       FormatMarkdown,
		"styled":   FormatStyled,
		"quiet":    FormatQuiet,
		"auto":     FormatAuto,
		"":         FormatAuto,
	}
	for in, want := range tests {
		if got := ParseFormat(in); got != want {
			t.Errorf("ParseFormat(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWriterOK(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatJSON, Writer: &buf})

	data := json.RawMessage(`{"index":"SSE","value":3245.12}`)
	err := w.OK(data, WithSummary("Index overview"), WithMeta("cache", map[string]int{"total": 1}))
	if err != nil {
		t.Fatalf("OK() failed: %v", err)
	}

	var resp struct {
		OK      bool           `json:"ok"`
		Data    map[string]any `json:"data"`
		Summary string         `json:"summary"`
		Meta    map[string]any `json:"meta"`
	}
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal output: %v", err)
	}

	if !resp.OK {
		t.Error("OK field should be true")
	}
	if resp.Summary != "Index overview" {
		t.Errorf("Summary = %q", resp.Summary)
	}
	if resp.Data["index"] != "SSE" {
		t.Errorf("Data = %v", resp.Data)
	}
	if _, ok := resp.Meta["cache"]; !ok {
		t.Errorf("Meta = %v", resp.Meta)
	}
}

func TestWriterErr(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatJSON, Writer: &buf})

	if err := w.Err(ErrHTTP(http.StatusNotFound, "no such report")); err != nil {
		t.Fatalf("Err() failed: %v", err)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal output: %v", err)
	}

	if resp.OK {
		t.Error("OK field should be false")
	}
	if resp.Code != CodeNotFound || resp.Error != "HTTP 404" || resp.Hint != "no such report" {
		t.Errorf("unexpected error envelope: %+v", resp)
	}
	if resp.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d", resp.HTTPStatus)
	}
}

func TestWriterQuietFormat(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatQuiet, Writer: &buf})

	if err := w.OK(map[string]any{"value": 1}, WithSummary("ignored")); err != nil {
		t.Fatalf("OK() failed: %v", err)
	}

	output := buf.String()
	if strings.Contains(output, `"ok"`) || strings.Contains(output, "ignored") {
		t.Errorf("quiet output should carry data only, got: %s", output)
	}
	if !strings.Contains(output, `"value": 1`) {
		t.Errorf("quiet output missing data: %s", output)
	}
}

func TestWriterAutoIsJSONWhenNotTTY(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Writer: &buf})

	if err := w.OK("hi"); err != nil {
		t.Fatalf("OK() failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"ok": true`) {
		t.Errorf("expected JSON envelope, got: %s", buf.String())
	}
}

func TestWithBreadcrumbsAppend(t *testing.T) {
	resp := &Response{}
	WithBreadcrumbs(Breadcrumb{Cmd: "a"})(resp)
	WithBreadcrumbs(Breadcrumb{Cmd: "b"}, Breadcrumb{Cmd: "c"})(resp)

	if len(resp.Breadcrumbs) != 3 {
		t.Errorf("expected 3 breadcrumbs, got %d", len(resp.Breadcrumbs))
	}
}

// =============================================================================
// Normalize / Markdown Tests
// =============================================================================

func TestNormalizeDataWithJSONRawMessage(t *testing.T) {
	got := NormalizeData(json.RawMessage(`[{"symbol":"MSFT"},{"symbol":"600519"}]`))

	rows, ok := got.([]map[string]any)
	if !ok {
		t.Fatalf("expected []map[string]any, got %T", got)
	}
	if len(rows) != 2 || rows[1]["symbol"] != "600519" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestNormalizeDataWithStruct(t *testing.T) {
	type quote struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	got := NormalizeData(quote{Symbol: "MSFT", Price: 410.5})

	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", got)
	}
	if m["symbol"] != "MSFT" || m["price"] != 410.5 {
		t.Errorf("unexpected map: %v", m)
	}
}

func TestNormalizeDataWithNil(t *testing.T) {
	if got := NormalizeData(nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestWriterMarkdownFormatList(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatMarkdown, Writer: &buf, Locale: NewLocale("en-US")})

	data := json.RawMessage(`[
		{"volume": 1234567, "name": "Kweichow Moutai", "symbol": "600519", "price": 1688.5},
		{"volume": 22000000, "name": "Microsoft", "symbol": "MSFT", "price": 410.25}
	]`)
	if err := w.OK(data, WithSummary("Watchlist")); err != nil {
		t.Fatalf("OK() failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "## Watchlist") {
		t.Errorf("missing summary heading: %s", output)
	}
	if !strings.Contains(output, "| Symbol | Name | Price | Volume |") {
		t.Errorf("columns should follow priority order: %s", output)
	}
	if !strings.Contains(output, "1,234,567") {
		t.Errorf("numbers should be grouped: %s", output)
	}
}

func TestWriterMarkdownFormatObject(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatMarkdown, Writer: &buf, Locale: NewLocale("en-US")})

	data := map[string]any{
		"market_open": false,
		"index": map[string]any{
			"value": 3245.12,
		},
	}
	if err := w.OK(data); err != nil {
		t.Fatalf("OK() failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "- **Market Open:** no") {
		t.Errorf("expected bool rendered as no: %s", output)
	}
	if !strings.Contains(output, "### Index") {
		t.Errorf("nested objects get their own section: %s", output)
	}
}

func TestWriterMarkdownOutputsLiteralMarkdown(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatMarkdown, Writer: &buf})

	if err := w.Err(ErrTimeout(15 * time.Second)); err != nil {
		t.Fatalf("Err() failed: %v", err)
	}

	output := buf.String()
	if strings.Contains(output, "\x1b[") {
		t.Errorf("Markdown output should NOT contain ANSI codes, got: %q", output)
	}
	if !strings.Contains(output, "**Error:** request timed out") {
		t.Errorf("Markdown output should contain '**Error:**', got: %s", output)
	}
	if !strings.Contains(output, "*Hint:") {
		t.Errorf("Markdown output should contain the hint, got: %s", output)
	}
}

func TestFormatCellTruncatesLongStrings(t *testing.T) {
	r := NewMarkdownRenderer(NewLocale("en-US"))
	long := strings.Repeat("x", maxCellWidth+10)

	got := r.formatCell(long)
	if len(got) != maxCellWidth || !strings.HasSuffix(got, "...") {
		t.Errorf("formatCell(long) = %q", got)
	}
}

// =============================================================================
// Locale Tests
// =============================================================================

func TestLocaleFormatNumber(t *testing.T) {
	tests := []struct {
		locale string
		in     float64
		want   string
	}{
		{"en_US.UTF-8", 1234567, "1,234,567"},
		{"en-US", 1234.567, "1,234.57"},
		{"de-DE", 1234.5, "1.234,5"},
		{"", 42, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			if got := NewLocale(tt.locale).FormatNumber(tt.in); got != tt.want {
				t.Errorf("FormatNumber(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLocaleAcceptLanguage(t *testing.T) {
	if got := NewLocale("en-US").AcceptLanguage(); got != "en-US,en;q=0.9" {
		t.Errorf("en-US = %q", got)
	}
	if got := NewLocale("zh_CN.UTF-8").AcceptLanguage(); got != "zh-CN,zh;q=0.9,en;q=0.8" {
		t.Errorf("zh-CN = %q", got)
	}
}

func TestDetectLocalePrefersDashcacheLocale(t *testing.T) {
	t.Setenv("DASHCACHE_LOCALE", "de-DE")
	t.Setenv("LANG", "en_US.UTF-8")

	if got := DetectLocale().Tag().String(); got != "de-DE" {
		t.Errorf("DetectLocale() = %q", got)
	}
}
