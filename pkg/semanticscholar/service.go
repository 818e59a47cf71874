// Package semanticscholar adapts the Semantic Scholar paper search API into
// a retrieval stage.
//
// The API has no relevance score. Results keep the server's order: rank is
// the server-reported offset plus the position within the page and score
// is the negated rank, so higher scores still mean better matches.
package semanticscholar

import (
	"context"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/Sternrassler/retrieval-services/pkg/client"
	"github.com/Sternrassler/retrieval-services/pkg/frame"
	"github.com/Sternrassler/retrieval-services/pkg/logging"
	"github.com/Sternrassler/retrieval-services/pkg/pipeline"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// BaseURL is the Graph API root.
	BaseURL = "https://api.semanticscholar.org/graph/v1"

	// ServiceName labels logs, metrics and cache keys.
	ServiceName = "semanticscholar"

	// APIKeyHeader carries the optional API key.
	APIKeyHeader = "x-api-key"

	// MaxLimit is the largest page the search endpoint serves.
	MaxLimit = 100

	// DefaultNumResults is the default number of results per query.
	DefaultNumResults = 100

	// IDField is the response field holding the paper identifier.
	IDField = "paperId"

	searchPath = "/paper/search"
)

// DefaultFields are the paper fields requested when none are given.
var DefaultFields = []string{"title", "abstract"}

// Config holds the service configuration.
type Config struct {
	// BaseURL overrides the API root (tests, proxies)
	BaseURL string

	// Client configures the HTTP transport
	Client client.Config
}

// DefaultConfig returns a configuration for the public API.
func DefaultConfig(userAgent string) Config {
	cc := client.DefaultConfig(ServiceName, userAgent)
	cc.APIKeyHeader = APIKeyHeader
	return Config{BaseURL: BaseURL, Client: cc}
}

// Service is a handle on the search API.
type Service struct {
	client  *client.Client
	baseURL string
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.Client.APIKeyHeader == "" {
		cfg.Client.APIKeyHeader = APIKeyHeader
	}

	c, err := client.New(cfg.Client)
	if err != nil {
		return nil, errors.Wrap(err, "semanticscholar: create client")
	}

	return &Service{
		client:  c,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tracer:  otel.Tracer("retrieval-services/semanticscholar"),
		logger:  logging.NewLogger(ServiceName),
	}, nil
}

// Close releases the transport.
func (s *Service) Close() error {
	return s.client.Close()
}

// SearchOptions selects one page of a search.
type SearchOptions struct {
	Offset int
	// Limit is clamped to [1, MaxLimit]
	Limit int
	// Fields defaults to DefaultFields
	Fields []string
}

type searchResponse struct {
	Total  *int             `json:"total"`
	Offset int              `json:"offset"`
	Next   *int             `json:"next"`
	Data   []map[string]any `json:"data"`
}

// Search fetches one page of papers matching query.
//
// The page's rows carry docno (the paper id), the requested fields, rank
// and score. Page.Next is nil once the server reports no further results.
func (s *Service) Search(ctx context.Context, query string, opts SearchOptions) (pipeline.Page, error) {
	fields := opts.Fields
	if len(fields) == 0 {
		fields = DefaultFields
	}
	limit := max(min(opts.Limit, MaxLimit), 1)

	ctx, span := s.tracer.Start(ctx, "semanticscholar.search",
		trace.WithAttributes(
			attribute.String("semanticscholar.query", query),
			attribute.Int("semanticscholar.offset", opts.Offset),
			attribute.Int("semanticscholar.limit", limit),
		),
	)
	defer span.End()

	params := url.Values{}
	params.Set("query", query)
	params.Set("offset", strconv.Itoa(opts.Offset))
	params.Set("fields", strings.Join(fields, ","))
	params.Set("limit", strconv.Itoa(limit))

	var resp searchResponse
	if err := s.client.GetJSON(ctx, s.baseURL+searchPath, params, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return pipeline.Page{}, errors.Wrapf(err, "semanticscholar: search %q at offset %d", query, opts.Offset)
	}

	results := toFrame(resp, fields)

	event := s.logger.Debug().
		Str("query", query).
		Int("offset", resp.Offset).
		Int("rows", results.Len())
	span.SetAttributes(attribute.Int("semanticscholar.rows", results.Len()))
	if resp.Total != nil {
		event = event.Int("total", *resp.Total)
		span.SetAttributes(attribute.Int("semanticscholar.total", *resp.Total))
	}
	event.Msg("Search page received")
	span.SetStatus(codes.Ok, "")

	return pipeline.Page{Results: results, Next: resp.Next, Total: resp.Total}, nil
}

func toFrame(resp searchResponse, fields []string) *frame.Frame {
	columns := make([]string, 0, len(fields)+1)
	columns = append(columns, frame.ColDocNo)
	for _, f := range fields {
		if f != IDField && !slices.Contains(columns, f) {
			columns = append(columns, f)
		}
	}

	if len(resp.Data) == 0 {
		return frame.New(append(columns, frame.ColRank, frame.ColScore)...)
	}

	out := frame.New(columns...)
	for i, paper := range resp.Data {
		row := make(frame.Row, len(paper)+2)
		for k, v := range paper {
			if k == IDField {
				k = frame.ColDocNo
			}
			row[k] = v
		}
		out.Append(row)
		rank := resp.Offset + i
		row[frame.ColRank] = rank
		row[frame.ColScore] = float64(-rank)
	}
	for _, c := range []string{frame.ColRank, frame.ColScore} {
		if !out.HasColumn(c) {
			out.Columns = append(out.Columns, c)
		}
	}
	return out
}
