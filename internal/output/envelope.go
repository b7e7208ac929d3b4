package output

import (
	"encoding/json"
	"io"
	"os"
)

// Response is the success envelope for JSON output.
type Response struct {
	OK          bool           `json:"ok"`
	Data        any            `json:"data,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	Breadcrumbs []Breadcrumb   `json:"breadcrumbs,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// Breadcrumb is a suggested follow-up action.
type Breadcrumb struct {
	Action      string `json:"action"`
	Cmd         string `json:"cmd"`
	Description string `json:"description"`
}

// ErrorResponse is the error envelope for JSON output.
type ErrorResponse struct {
	OK         bool   `json:"ok"`
	Error      string `json:"error"`
	Code       string `json:"code"`
	Hint       string `json:"hint,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
}

// NewErrorResponse converts any error into the error envelope.
func NewErrorResponse(err error) *ErrorResponse {
	e := AsError(err)
	return &ErrorResponse{
		OK:         false,
		Error:      e.Message,
		Code:       e.Code,
		Hint:       e.Hint,
		HTTPStatus: e.HTTPStatus,
	}
}

// Format specifies the output format.
type Format int

const (
	FormatAuto     Format = iota // Auto-detect: TTY → Styled, non-TTY → JSON
	FormatJSON
	FormatMarkdown // Literal Markdown syntax (portable, pipeable)
	FormatStyled   // Markdown rendered for the terminal (forced, even when piped)
	FormatQuiet    // Data only, no envelope
)

// ParseFormat maps a config/flag value to a Format.
func ParseFormat(s string) Format {
	switch s {
	case "json":
		return FormatJSON
	case "markdown", "md":
		return FormatMarkdown
	case "styled":
		return FormatStyled
	case "quiet":
		return FormatQuiet
	default:
		return FormatAuto
	}
}

// Options controls output behavior.
type Options struct {
	Format Format
	Writer io.Writer
	Locale Locale
}

// Writer handles all output formatting.
type Writer struct {
	opts Options
}

// New creates a new output writer.
func New(opts Options) *Writer {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	if opts.Locale.printer == nil {
		opts.Locale = DetectLocale()
	}
	return &Writer{opts: opts}
}

// Format returns the configured format.
func (w *Writer) Format() Format {
	return w.opts.Format
}

// OK outputs a success response.
func (w *Writer) OK(data any, opts ...ResponseOption) error {
	resp := &Response{OK: true, Data: data}
	for _, opt := range opts {
		opt(resp)
	}
	return w.write(resp)
}

// Err outputs an error response.
func (w *Writer) Err(err error) error {
	return w.write(NewErrorResponse(err))
}

func (w *Writer) write(v any) error {
	format := w.opts.Format

	if format == FormatAuto {
		if isTTY(w.opts.Writer) {
			format = FormatStyled
		} else {
			format = FormatJSON
		}
	}

	switch format {
	case FormatQuiet:
		if resp, ok := v.(*Response); ok {
			return w.writeJSON(resp.Data)
		}
		return w.writeJSON(v)
	case FormatMarkdown:
		return w.writeMarkdown(v, false)
	case FormatStyled:
		return w.writeMarkdown(v, true)
	default:
		return w.writeJSON(v)
	}
}

// isTTY checks if the writer is a terminal.
func isTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		fi, err := f.Stat()
		if err != nil {
			return false
		}
		return (fi.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

func (w *Writer) writeJSON(v any) error {
	enc := json.NewEncoder(w.opts.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (w *Writer) writeMarkdown(v any, styled bool) error {
	r := NewMarkdownRenderer(w.opts.Locale)
	var md string
	switch resp := v.(type) {
	case *Response:
		md = r.RenderResponse(resp)
	case *ErrorResponse:
		if styled {
			return RenderStyledError(w.opts.Writer, resp)
		}
		md = r.RenderError(resp)
	default:
		return w.writeJSON(v)
	}
	if styled {
		return renderStyled(w.opts.Writer, md)
	}
	_, err := io.WriteString(w.opts.Writer, md)
	return err
}

// ResponseOption modifies a Response.
type ResponseOption func(*Response)

// WithSummary adds a summary to the response.
func WithSummary(s string) ResponseOption {
	return func(r *Response) { r.Summary = s }
}

// WithBreadcrumbs adds breadcrumbs to the response.
func WithBreadcrumbs(b ...Breadcrumb) ResponseOption {
	return func(r *Response) { r.Breadcrumbs = append(r.Breadcrumbs, b...) }
}

// WithMeta adds metadata to the response.
func WithMeta(key string, value any) ResponseOption {
	return func(r *Response) {
		if r.Meta == nil {
			r.Meta = make(map[string]any)
		}
		r.Meta[key] = value
	}
}
