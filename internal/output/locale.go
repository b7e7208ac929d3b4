package output

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Locale formats numbers in prices, volumes and counters.
type Locale struct {
	tag     language.Tag
	printer *message.Printer
}

// DetectLocale resolves the locale from DASHCACHE_LOCALE, then LC_ALL / LC_NUMERIC / LANG.
func DetectLocale() Locale {
	for _, env := range []string{"DASHCACHE_LOCALE", "LC_ALL", "LC_NUMERIC", "LANG"} {
		if raw := os.Getenv(env); raw != "" {
			return NewLocale(raw)
		}
	}
	return NewLocale("")
}

// NewLocale accepts a POSIX locale ("zh_CN.UTF-8") or a BCP 47 tag ("zh-CN").
// Empty or unparseable input yields en-US.
func NewLocale(raw string) Locale {
	if idx := strings.IndexByte(raw, '.'); idx != -1 {
		raw = raw[:idx]
	}
	raw = strings.ReplaceAll(raw, "_", "-")

	tag, _ := language.Parse(raw)
	if tag == language.Und {
		tag = language.AmericanEnglish
	}
	return Locale{tag: tag, printer: message.NewPrinter(tag)}
}

// FormatNumber groups digits and keeps at most two decimals.
func (l Locale) FormatNumber(v float64) string {
	if v == float64(int64(v)) {
		return l.printer.Sprint(number.Decimal(int64(v)))
	}
	return l.printer.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

// Tag returns the resolved language tag.
func (l Locale) Tag() language.Tag {
	return l.tag
}

// AcceptLanguage renders the tag as an Accept-Language header value,
// falling back to English for everything else.
func (l Locale) AcceptLanguage() string {
	base, _ := l.tag.Base()
	if base.String() == "en" {
		return l.tag.String() + ",en;q=0.9"
	}
	return l.tag.String() + "," + base.String() + ";q=0.9,en;q=0.8"
}
