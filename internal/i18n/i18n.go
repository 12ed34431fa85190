// Package i18n localizes panel messages. Error and notice texts are looked up by
// key in a golang.org/x/text catalog; English and German are bundled.
package i18n

import (
	"context"
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is the fallback language
var DefaultLang = language.English

// SupportedLangs are the languages with a bundled catalog.
var SupportedLangs = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(SupportedLangs)

type contextKey struct{}

var printerKey = contextKey{}

// MatchLanguage returns the best matching language for an Accept-Language value.
func MatchLanguage(acceptLang string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(acceptLang)
	tag, _, _ := matcher.Match(tags...)
	return tag
}

// NewPrinter returns a message printer for the given language backed by the
// panel catalog.
func NewPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(panelCatalog))
}

// WithPrinter returns a new context with the printer injected
func WithPrinter(ctx context.Context, p *message.Printer) context.Context {
	return context.WithValue(ctx, printerKey, p)
}

// GetPrinter returns the printer from the context, or a default one
func GetPrinter(ctx context.Context) *message.Printer {
	p, ok := ctx.Value(printerKey).(*message.Printer)
	if !ok {
		return NewPrinter(DefaultLang)
	}
	return p
}

// NewCLIPrinter returns a printer for the system's locale (from env vars)
func NewCLIPrinter() *message.Printer {
	lang := os.Getenv("LC_ALL")
	if lang == "" {
		lang = os.Getenv("LANG")
	}
	if lang == "" {
		return NewPrinter(DefaultLang)
	}

	// en_US.UTF-8 -> en_US
	if i := strings.Index(lang, "."); i != -1 {
		lang = lang[:i]
	}
	lang = strings.ReplaceAll(lang, "_", "-")

	tag, err := language.Parse(lang)
	if err != nil {
		tag = MatchLanguage(lang)
	} else {
		tag, _, _ = matcher.Match(tag)
	}

	return NewPrinter(tag)
}

// Label is a field-name key that gets translated before it is substituted
// into a message, e.g. "mydomain" -> "Domain".
type Label string

// Text renders a catalog key with args. Label args are translated first.
func Text(p *message.Printer, key string, args ...any) string {
	resolved := make([]any, len(args))
	for i, a := range args {
		if l, ok := a.(Label); ok {
			resolved[i] = p.Sprintf(string(l))
			continue
		}
		resolved[i] = a
	}
	return p.Sprintf(key, resolved...)
}

// T renders key with the printer stored in ctx.
func T(ctx context.Context, key string, args ...any) string {
	return Text(GetPrinter(ctx), key, args...)
}
