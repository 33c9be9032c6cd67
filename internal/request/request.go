// Package request maps logical queries to immutable endpoint requests. It never performs I/O:
// every parameter problem is reported as InvalidParameterError before anything is sent.
package request

import (
	"net/url"
	"regexp"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"yfengine/pkg/records"
	"yfengine/pkg/yferr"
)

// Family is the upstream endpoint family.
type Family string

const (
	FamilyHistory           Family = "history"
	FamilyQuoteSummary      Family = "quote-summary-module"
	FamilyOptionExpirations Family = "options-expirations"
	FamilyOptionChain       Family = "options-chain"
	FamilyDownload          Family = "download-export"
	// FamilyISINLookup is served by a separate search service without a session.
	FamilyISINLookup        Family = "isin-lookup"
)

// External reports whether the family is served outside the finance API.
func (f Family) External() bool { return f == FamilyISINLookup }

// Endpoint is one immutable upstream request.
type Endpoint struct {
	symbol      string
	family      Family
	category    records.Category
	path        string
	params      url.Values
	fingerprint string

	modules    []string
	history    *HistoryQuery
	frequency  records.Frequency
	expiration time.Time
}

func (e *Endpoint) Symbol() string               { return e.symbol }
func (e *Endpoint) Family() Family               { return e.family }
func (e *Endpoint) Category() records.Category   { return e.category }
func (e *Endpoint) Path() string                 { return e.path }
func (e *Endpoint) Fingerprint() string          { return e.fingerprint }
func (e *Endpoint) Frequency() records.Frequency { return e.frequency }
func (e *Endpoint) Expiration() time.Time        { return e.expiration }

// Params returns a copy of the query parameters.
func (e *Endpoint) Params() url.Values {
	out := make(url.Values, len(e.params))
	for k, v := range e.params {
		out[k] = slices.Clone(v)
	}
	return out
}

// Modules returns a copy of the quote summary modules of this request.
func (e *Endpoint) Modules() []string { return slices.Clone(e.modules) }

// History returns the validated time series query behind a history or download request.
func (e *Endpoint) History() (HistoryQuery, bool) {
	if e.history == nil {
		return HistoryQuery{}, false
	}
	return *e.history, true
}

// Builder builds endpoint requests. It is safe for concurrent use.
type Builder struct {
	now         func() time.Time
	moduleChunk int
	lang        string
	region      string
}

type BuilderOption func(*Builder)

// WithNow fixes the clock used for relative ranges.
func WithNow(now func() time.Time) BuilderOption { return func(b *Builder) { b.now = now } }

// WithModuleChunk caps the number of modules per quote summary request.
func WithModuleChunk(n int) BuilderOption { return func(b *Builder) { b.moduleChunk = n } }

func WithLocale(lang, region string) BuilderOption {
	return func(b *Builder) { b.lang, b.region = lang, region }
}

func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{now: time.Now, moduleChunk: 8, lang: "en-US", region: "US"}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var (
	symbolRe = regexp.MustCompile(`^[A-Za-z0-9^][A-Za-z0-9.\-^=_&]{0,31}$`)
	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("symbol", func(fl validator.FieldLevel) bool {
		return symbolRe.MatchString(fl.Field().String())
	})
	return v
}

// ValidSymbol reports whether s looks like an upstream ticker symbol.
func ValidSymbol(s string) bool { return symbolRe.MatchString(s) }

func checkSymbol(symbol string, cat records.Category) error {
	if err := validate.Var(symbol, "required,symbol"); err != nil {
		return yferr.New(yferr.InvalidParameter, symbol, string(cat), "invalid symbol %q", symbol)
	}
	return nil
}

func invalid(symbol string, cat records.Category, format string, args ...any) error {
	return yferr.New(yferr.InvalidParameter, symbol, string(cat), format, args...)
}

// fingerprint canonicalises the logical parameters: url.Values.Encode sorts by key.
func fingerprint(family Family, params url.Values, extra url.Values) string {
	all := url.Values{"_family": {string(family)}}
	for k, v := range params {
		all[k] = slices.Clone(v)
	}
	for k, v := range extra {
		all["_"+k] = slices.Clone(v)
	}
	for _, v := range all {
		slices.Sort(v)
	}
	return all.Encode()
}

// chunkStrings splits in into batches of at most size.
func chunkStrings(in []string, size int) [][]string {
	if size <= 0 || len(in) == 0 {
		return [][]string{in}
	}
	out := make([][]string, 0, (len(in)+size-1)/size)
	for i := 0; i < len(in); i += size {
		j := min(i+size, len(in))
		out = append(out, in[i:j])
	}
	return out
}
