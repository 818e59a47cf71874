package pinecone

import (
	"context"
	"os"
	"strings"

	"github.com/Sternrassler/retrieval-services/pkg/client"
	"github.com/Sternrassler/retrieval-services/pkg/logging"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// BaseURL is the control plane host serving inference.
	BaseURL = "https://api.pinecone.io"

	// ServiceName labels logs and metrics.
	ServiceName = "pinecone"

	// APIKeyEnv is read when no key is configured.
	APIKeyEnv = "PINECONE_API_KEY"

	APIKeyHeader     = "Api-Key"
	APIVersionHeader = "X-Pinecone-API-Version"
	APIVersion       = "2025-04"

	embedPath  = "/embed"
	rerankPath = "/rerank"
)

// ErrMissingAPIKey is returned by NewAPI when no key is configured.
var ErrMissingAPIKey = errors.New("pinecone: missing api key")

// Config holds the API configuration.
type Config struct {
	// BaseURL overrides the API host (tests, proxies)
	BaseURL string

	// APIKey defaults to $PINECONE_API_KEY
	APIKey string

	// Client configures the HTTP transport
	Client client.Config
}

// DefaultConfig returns a configuration for the public API.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL: BaseURL,
		Client:  client.DefaultConfig(ServiceName, userAgent),
	}
}

// API calls the Pinecone inference REST endpoints.
type API struct {
	client  *client.Client
	baseURL string
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// NewAPI creates an API client.
func NewAPI(cfg Config) (*API, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(APIKeyEnv)
	}
	if cfg.APIKey == "" {
		return nil, errors.WithHintf(ErrMissingAPIKey, "set %s or pass an api key", APIKeyEnv)
	}

	cc := cfg.Client
	cc.APIKey = cfg.APIKey
	cc.APIKeyHeader = APIKeyHeader
	headers := make(map[string]string, len(cc.Headers)+1)
	for k, v := range cc.Headers {
		headers[k] = v
	}
	headers[APIVersionHeader] = APIVersion
	cc.Headers = headers

	c, err := client.New(cc)
	if err != nil {
		return nil, errors.Wrap(err, "pinecone: create client")
	}

	return &API{
		client:  c,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tracer:  otel.Tracer("retrieval-services/pinecone"),
		logger:  logging.NewLogger(ServiceName),
	}, nil
}

// Close releases the transport.
func (a *API) Close() error {
	return a.client.Close()
}

type textInput struct {
	Text string `json:"text"`
}

func textInputs(texts []string) []textInput {
	out := make([]textInput, len(texts))
	for i, t := range texts {
		out[i] = textInput{Text: t}
	}
	return out
}

type embedBody struct {
	Model      string         `json:"model"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Inputs     []textInput    `json:"inputs"`
}

// Embed implements Inference.
func (a *API) Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	ctx, span := a.tracer.Start(ctx, "pinecone.embed",
		trace.WithAttributes(
			attribute.String("pinecone.model", req.Model),
			attribute.String("pinecone.input_type", string(req.InputType)),
			attribute.Int("pinecone.inputs", len(req.Inputs)),
		),
	)
	defer span.End()

	params := map[string]any{}
	if req.InputType != "" {
		params["input_type"] = string(req.InputType)
	}
	if req.Truncate != "" {
		params["truncate"] = req.Truncate
	}
	if req.ReturnTokens {
		params["return_tokens"] = true
	}

	var resp EmbedResponse
	body := embedBody{Model: req.Model, Parameters: params, Inputs: textInputs(req.Inputs)}
	if err := a.client.PostJSON(ctx, a.baseURL+embedPath, body, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed failed")
		return nil, errors.Wrapf(err, "pinecone: embed with %s", req.Model)
	}

	a.logger.Debug().
		Str("model", req.Model).
		Str("input_type", string(req.InputType)).
		Int("inputs", len(req.Inputs)).
		Str("vector_type", string(resp.VectorType)).
		Msg("Embedded batch")

	span.SetStatus(codes.Ok, "")
	return &resp, nil
}

type rerankBody struct {
	Model           string         `json:"model"`
	Query           string         `json:"query"`
	Documents       []textInput    `json:"documents"`
	TopN            int            `json:"top_n,omitempty"`
	ReturnDocuments bool           `json:"return_documents"`
	Parameters      map[string]any `json:"parameters,omitempty"`
}

// Rerank implements Inference. Documents are never echoed back.
func (a *API) Rerank(ctx context.Context, req RerankRequest) (*RerankResponse, error) {
	ctx, span := a.tracer.Start(ctx, "pinecone.rerank",
		trace.WithAttributes(
			attribute.String("pinecone.model", req.Model),
			attribute.Int("pinecone.documents", len(req.Documents)),
		),
	)
	defer span.End()

	body := rerankBody{
		Model:     req.Model,
		Query:     req.Query,
		Documents: textInputs(req.Documents),
		TopN:      req.TopN,
	}
	if req.Truncate != "" {
		body.Parameters = map[string]any{"truncate": req.Truncate}
	}

	var resp RerankResponse
	if err := a.client.PostJSON(ctx, a.baseURL+rerankPath, body, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rerank failed")
		return nil, errors.Wrapf(err, "pinecone: rerank with %s", req.Model)
	}

	a.logger.Debug().
		Str("model", req.Model).
		Int("documents", len(req.Documents)).
		Int("results", len(resp.Data)).
		Msg("Reranked batch")

	span.SetStatus(codes.Ok, "")
	return &resp, nil
}

var _ Inference = (*API)(nil)
