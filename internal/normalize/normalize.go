// Package normalize turns raw upstream payloads into typed record sets.
//
// Payloads are parsed into a variant Node tree, checked against a declared Schema and then
// extracted with mapstructure. Each category has one normalizer, selected through a
// Registry. Malformed rows are dropped with a diagnostic unless their share exceeds the
// configured threshold, in which case the whole payload fails with a SchemaError.
package normalize

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"yfengine/internal/httpx"
	"yfengine/internal/request"
	"yfengine/pkg/records"
	"yfengine/pkg/yferr"
)

// DefaultThreshold is the tolerated share of malformed rows.
const DefaultThreshold = 0.25

// Input is everything a normalizer sees: the request and one raw response per chunk.
type Input struct {
	Endpoint *request.Endpoint
	Raws     []*httpx.Raw
}

// Normalizer converts the responses of one category.
type Normalizer interface {
	Normalize(ctx context.Context, in Input) (records.Set, error)
}

type normalizeFunc func(j *job) (records.Set, error)

// Registry maps categories to normalizers.
type Registry struct {
	threshold float64
	log       zerolog.Logger
	byCat     map[records.Category]normalizeFunc
}

type Option func(*Registry)

// WithThreshold sets the malformed-row ratio above which a payload is rejected.
func WithThreshold(ratio float64) Option { return func(r *Registry) { r.threshold = ratio } }

func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) { r.log = log.With().Str("component", "normalize").Logger() }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		threshold: DefaultThreshold,
		log:       zerolog.Nop(),
		byCat: map[records.Category]normalizeFunc{
			records.CategoryHistory:              normalizeHistory,
			records.CategoryDownload:             normalizeDownload,
			records.CategoryDividends:            normalizeActions,
			records.CategorySplits:               normalizeActions,
			records.CategoryActions:              normalizeActions,
			records.CategoryCapitalGains:         normalizeActions,
			records.CategoryInfo:                 normalizeInfo,
			records.CategoryFastInfo:             normalizeFastInfo,
			records.CategoryCalendar:             normalizeCalendar,
			records.CategoryModules:              normalizeModules,
			records.CategoryRecommendations:      normalizeRecommendations,
			records.CategoryUpgradesDowngrades:   normalizeUpgradesDowngrades,
			records.CategoryMajorHolders:         normalizeMajorHolders,
			records.CategoryInstitutionalHolders: normalizeOwnership,
			records.CategoryMutualFundHolders:    normalizeOwnership,
			records.CategoryInsiderTransactions:  normalizeInsiderTransactions,
			records.CategoryInsiderRoster:        normalizeInsiderRoster,
			records.CategoryIncomeStatement:      normalizeStatement,
			records.CategoryBalanceSheet:         normalizeStatement,
			records.CategoryCashFlow:             normalizeStatement,
			records.CategoryEarnings:             normalizeEarnings,
			records.CategoryOptionExpirations:    normalizeOptionExpirations,
			records.CategoryOptionChain:          normalizeOptionChain,
			records.CategoryISIN:                 normalizeISIN,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// For returns the normalizer of cat.
func (r *Registry) For(cat records.Category) (Normalizer, bool) {
	fn, ok := r.byCat[cat]
	if !ok {
		return nil, false
	}
	return bound{r: r, fn: fn}, true
}

// Normalize dispatches on the endpoint category.
func (r *Registry) Normalize(ctx context.Context, in Input) (records.Set, error) {
	if in.Endpoint == nil {
		return nil, fmt.Errorf("normalize: nil endpoint")
	}
	n, ok := r.For(in.Endpoint.Category())
	if !ok {
		return nil, yferr.New(yferr.InvalidParameter, in.Endpoint.Symbol(), string(in.Endpoint.Category()),
			"no normalizer for category %q", in.Endpoint.Category())
	}
	return n.Normalize(ctx, in)
}

type bound struct {
	r  *Registry
	fn normalizeFunc
}

func (b bound) Normalize(ctx context.Context, in Input) (records.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.Endpoint == nil || len(in.Raws) == 0 {
		return nil, fmt.Errorf("normalize: endpoint and at least one response are required")
	}
	j := &job{
		in:        in,
		symbol:    in.Endpoint.Symbol(),
		cat:       in.Endpoint.Category(),
		threshold: b.r.threshold,
	}
	j.log = b.r.log.With().Str("symbol", j.symbol).Str("category", string(j.cat)).Logger()
	set, err := b.fn(j)
	if err != nil {
		return nil, yferr.WithContext(err, j.symbol, string(j.cat))
	}
	return set, nil
}

// job carries the state of one normalization.
type job struct {
	in        Input
	symbol    string
	cat       records.Category
	threshold float64
	log       zerolog.Logger
}

func (j *job) schemaError(format string, args ...any) error {
	return yferr.New(yferr.Schema, j.symbol, string(j.cat), format, args...)
}

func (j *job) unavailable(format string, args ...any) error {
	return yferr.New(yferr.DataUnavailable, j.symbol, string(j.cat), format, args...)
}

// parse decodes the body of the i-th response.
func (j *job) parse(i int) (Node, error) {
	raw := j.in.Raws[i]
	if raw.IsHTML() {
		return Node{}, j.schemaError("expected JSON, got HTML (%s)", raw.MediaType())
	}
	n, err := Parse(raw.Body)
	if err != nil {
		return Node{}, yferr.Wrap(yferr.Schema, j.symbol, string(j.cat), err, "malformed payload")
	}
	return n, nil
}

// envelope unwraps {"<name>": {"result": [...], "error": {...}}} and returns result[0].
func (j *job) envelope(n Node, name string) (Node, error) {
	env := n.Get(name)
	if !env.Exists() {
		return Node{}, j.schemaError("payload has no %q envelope", name)
	}
	if e := env.Get("error"); e.Exists() {
		code, _ := e.Get("code").Str()
		desc, _ := e.Get("description").Str()
		if code == "Not Found" || code == "" {
			return Node{}, j.unavailable("%s", desc)
		}
		return Node{}, yferr.New(yferr.Request, j.symbol, string(j.cat), "upstream error %s: %s", code, desc)
	}
	result := env.Get("result").Index(0)
	if result.Kind() != KindObject {
		return Node{}, j.unavailable("no data returned")
	}
	return result, nil
}

// rows tracks dropped rows for one table.
type rows struct {
	j       *job
	total   int
	dropped int
	first   string
	diags   []records.Diagnostic
}

func (j *job) rows(total int) *rows { return &rows{j: j, total: total} }

func (r *rows) drop(i int, reason string) {
	if r.dropped == 0 {
		r.first = reason
	}
	r.dropped++
	r.diags = append(r.diags, records.Diagnostic{Symbol: r.j.symbol, Category: r.j.cat, Row: i, Reason: reason})
	r.j.log.Warn().Int("row", i).Str("reason", reason).Msg("dropped malformed row")
}

// note records a diagnostic that does not count towards the threshold.
func (r *rows) note(i int, reason string) {
	r.diags = append(r.diags, records.Diagnostic{Symbol: r.j.symbol, Category: r.j.cat, Row: i, Reason: reason})
	r.j.log.Debug().Int("row", i).Str("reason", reason).Msg("skipped row")
}

// check fails when the malformed share exceeds the threshold.
func (r *rows) check() error {
	if r.total == 0 || r.dropped == 0 {
		return nil
	}
	ratio := float64(r.dropped) / float64(r.total)
	if ratio > r.j.threshold {
		return r.j.schemaError("%d of %d rows malformed (%.0f%% > %.0f%%); first: %s",
			r.dropped, r.total, ratio*100, r.j.threshold*100, r.first)
	}
	return nil
}

// decodeRow validates and extracts one row, dropping it on failure.
func (r *rows) decodeRow(i int, n Node, schema Schema, out any, loc *time.Location) bool {
	if v := schema.Check(n); v != nil {
		r.drop(i, v.Error())
		return false
	}
	if err := decodeNode(n, out, loc); err != nil {
		r.drop(i, err.Error())
		return false
	}
	return true
}

// location resolves an IANA zone, falling back to UTC.
func location(name string) (*time.Location, records.TimezoneSource) {
	if name == "" {
		return time.UTC, records.TimezoneUTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, records.TimezoneUTC
	}
	return loc, records.TimezoneExchange
}
