package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
)

// columnPriority orders the keys market payloads most often carry.
// Lower sorts first; unknown keys get 50.
var columnPriority = map[string]int{
	"symbol":         1,
	"code":           2,
	"name":           3,
	"title":          4,
	"price":          10,
	"change":         11,
	"change_percent": 12,
	"pct_change":     12,
	"volume":         13,
	"date":           20,
	"time":           21,
	"key":            1,
	"state":          5,
	"age":            6,
}

const (
	maxTableColumns = 8
	maxCellWidth    = 40
)

// MarkdownRenderer turns envelopes into literal Markdown.
type MarkdownRenderer struct {
	locale Locale
}

// NewMarkdownRenderer creates a renderer that formats numbers for the given locale.
func NewMarkdownRenderer(locale Locale) *MarkdownRenderer {
	if locale.printer == nil {
		locale = DetectLocale()
	}
	return &MarkdownRenderer{locale: locale}
}

// RenderResponse renders a success response as Markdown.
func (r *MarkdownRenderer) RenderResponse(resp *Response) string {
	var b strings.Builder

	if resp.Summary != "" {
		b.WriteString("## " + resp.Summary + "\n\n")
	}

	r.renderData(&b, NormalizeData(resp.Data))

	if len(resp.Breadcrumbs) > 0 {
		b.WriteString("\n### Next\n\n")
		for _, bc := range resp.Breadcrumbs {
			line := "- `" + bc.Cmd + "`"
			if bc.Description != "" {
				line += ": " + bc.Description
			}
			b.WriteString(line + "\n")
		}
	}

	if len(resp.Meta) > 0 {
		b.WriteString("\n### Meta\n\n")
		keys := make([]string, 0, len(resp.Meta))
		for k := range resp.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString("- **" + formatHeader(k) + ":** " + r.formatMeta(resp.Meta[k]) + "\n")
		}
	}

	return b.String()
}

// RenderError renders an error response as Markdown.
func (r *MarkdownRenderer) RenderError(resp *ErrorResponse) string {
	var b strings.Builder
	b.WriteString("**Error:** " + resp.Error + "\n")
	if resp.Hint != "" {
		b.WriteString("\n*Hint: " + resp.Hint + "*\n")
	}
	return b.String()
}

func (r *MarkdownRenderer) renderData(b *strings.Builder, data any) {
	switch d := data.(type) {
	case []map[string]any:
		if len(d) == 0 {
			b.WriteString("*No results*\n")
			return
		}
		r.renderTable(b, d)
	case map[string]any:
		r.renderObject(b, d)
	case []any:
		if len(d) == 0 {
			b.WriteString("*No results*\n")
			return
		}
		for _, item := range d {
			b.WriteString("- " + r.formatCell(item) + "\n")
		}
	case string:
		b.WriteString(d + "\n")
	case nil:
		b.WriteString("*No data*\n")
	default:
		b.WriteString(r.formatCell(d) + "\n")
	}
}

func (r *MarkdownRenderer) renderTable(b *strings.Builder, data []map[string]any) {
	cols := detectColumns(data)
	if len(cols) == 0 {
		b.WriteString("*No displayable fields*\n")
		return
	}

	headers := make([]string, len(cols))
	seps := make([]string, len(cols))
	for i, col := range cols {
		headers[i] = formatHeader(col)
		seps[i] = "---"
	}
	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	b.WriteString("| " + strings.Join(seps, " | ") + " |\n")

	for _, item := range data {
		cells := make([]string, len(cols))
		for i, col := range cols {
			cells[i] = strings.ReplaceAll(r.formatCell(item[col]), "|", "\\|")
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
}

func (r *MarkdownRenderer) renderObject(b *strings.Builder, data map[string]any) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sortByPriority(keys)

	if len(keys) == 0 {
		b.WriteString("*No data*\n")
		return
	}

	var nested []string
	for _, k := range keys {
		switch v := data[k].(type) {
		case map[string]any, []any:
			if rows, ok := toMapSlice(v); ok && len(rows) > 0 {
				nested = append(nested, k)
				continue
			}
			if _, ok := v.(map[string]any); ok {
				nested = append(nested, k)
				continue
			}
		}
		b.WriteString("- **" + formatHeader(k) + ":** " + r.formatCell(data[k]) + "\n")
	}

	for _, k := range nested {
		b.WriteString("\n### " + formatHeader(k) + "\n\n")
		switch v := data[k].(type) {
		case map[string]any:
			r.renderObject(b, v)
		default:
			rows, _ := toMapSlice(v)
			r.renderTable(b, rows)
		}
	}
}

func (r *MarkdownRenderer) formatCell(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		if len(v) > maxCellWidth {
			return v[:maxCellWidth-3] + "..."
		}
		return v
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case float64:
		return r.locale.FormatNumber(v)
	case int:
		return r.locale.FormatNumber(float64(v))
	case int64:
		return r.locale.FormatNumber(float64(v))
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, r.formatCell(item))
		}
		return strings.Join(items, ", ")
	case map[string]any:
		return fmt.Sprintf("{%d fields}", len(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (r *MarkdownRenderer) formatMeta(val any) string {
	normalized := NormalizeData(val)
	if m, ok := normalized.(map[string]any); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+r.formatCell(m[k]))
		}
		return strings.Join(parts, ", ")
	}
	return r.formatCell(normalized)
}

// detectColumns picks scalar columns from the first row, ordered by priority.
func detectColumns(data []map[string]any) []string {
	if len(data) == 0 {
		return nil
	}
	var cols []string
	for key, val := range data[0] {
		switch val.(type) {
		case map[string]any, []any:
			continue
		}
		cols = append(cols, key)
	}
	sortByPriority(cols)
	if len(cols) > maxTableColumns {
		cols = cols[:maxTableColumns]
	}
	return cols
}

func sortByPriority(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := priorityOf(keys[i]), priorityOf(keys[j])
		if pi != pj {
			return pi < pj
		}
		return keys[i] < keys[j]
	})
}

func priorityOf(key string) int {
	if p, ok := columnPriority[key]; ok {
		return p
	}
	return 50
}

func formatHeader(key string) string {
	key = strings.ReplaceAll(key, "_", " ")
	words := strings.Fields(key)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// toMapSlice converts a []any whose elements are all objects.
func toMapSlice(v any) ([]map[string]any, bool) {
	slice, ok := v.([]any)
	if !ok {
		return nil, false
	}
	rows := make([]map[string]any, 0, len(slice))
	for _, item := range slice {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		rows = append(rows, m)
	}
	return rows, true
}

// NormalizeData converts json.RawMessage and typed values to generic JSON values.
func NormalizeData(data any) any {
	var raw []byte
	switch d := data.(type) {
	case nil:
		return nil
	case json.RawMessage:
		raw = d
	case map[string]any, string, float64, bool:
		return d
	case []any:
		if rows, ok := toMapSlice(d); ok {
			return rows
		}
		return d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return data
		}
		raw = b
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return data
	}
	if rows, ok := toMapSlice(v); ok {
		return rows
	}
	return v
}

// renderStyled renders Markdown for the terminal with glamour.
func renderStyled(w io.Writer, md string) error {
	width := 80
	if f, ok := w.(*os.File); ok {
		if tw, _, err := term.GetSize(f.Fd()); err == nil && tw >= 40 {
			width = tw
		}
	}

	style := glamour.WithAutoStyle()
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		style = glamour.WithStandardStyle("notty")
	}

	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		_, werr := io.WriteString(w, md)
		return werr
	}
	out, err := r.Render(md)
	if err != nil {
		_, werr := io.WriteString(w, md)
		return werr
	}
	_, err = io.WriteString(w, out)
	return err
}

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#d93025", Dark: "#f28b82"}).Bold(true)
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#80868b", Dark: "#6e7681"}).Italic(true)
)

// RenderStyledError writes an error envelope with terminal colors.
func RenderStyledError(w io.Writer, resp *ErrorResponse) error {
	var b strings.Builder
	b.WriteString(errorStyle.Render("Error: "+resp.Error) + "\n")
	if resp.Hint != "" {
		b.WriteString(hintStyle.Render(resp.Hint) + "\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
