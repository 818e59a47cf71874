package main

import (
	"context"
	"strings"

	"github.com/Sternrassler/retrieval-services/pkg/config"
	"github.com/Sternrassler/retrieval-services/pkg/frame"
	"github.com/Sternrassler/retrieval-services/pkg/pinecone"
	"github.com/Sternrassler/retrieval-services/pkg/pipeline"
	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v2"
)

// Stage kinds accepted by --with.
const (
	kindRerank = "rerank"
	kindSparse = "sparse"
	kindDense  = "dense"
)

func rerankCommand() *cli.Command {
	flags := append(queryFlags(),
		&cli.StringFlag{
			Name:  "with",
			Usage: "Scoring stage: rerank, sparse or dense",
			Value: kindRerank,
		},
		&cli.StringFlag{
			Name:  "model",
			Usage: "Pinecone model name (default from configuration)",
		},
		&cli.StringSliceFlag{
			Name:  "text-fields",
			Usage: "Paper fields joined into the document text (default: the retrieved fields)",
		},
	)

	return &cli.Command{
		Name:   "rerank",
		Usage:  "Retrieve papers from Semantic Scholar and rescore them with Pinecone",
		Flags:  flags,
		Action: rerankAction,
	}
}

func rerankAction(c *cli.Context) error {
	e := getEnv(c)
	queries, err := loadQueries(c)
	if err != nil {
		return err
	}

	rdb, err := connectRedis(c.Context, e.cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	s2, err := newScholar(e.cfg, rdb)
	if err != nil {
		return err
	}
	defer s2.Close()

	api, inference, err := newInference(e.cfg, rdb)
	if err != nil {
		return err
	}
	defer api.Close()

	scorer, err := scoringStage(e.cfg, c.String("with"), c.String("model"), inference)
	if err != nil {
		return err
	}

	textFields := c.StringSlice("text-fields")
	if len(textFields) == 0 {
		textFields = e.cfg.SemanticScholar.Fields
	}

	stage := pipeline.Then(
		newRetriever(e.cfg, s2, c.Int("num-results"), withLogProgress(e)),
		documentText(textFields),
		scorer,
	)

	e.logger.Info().
		Int("queries", queries.Len()).
		Str("with", c.String("with")).
		Msg("Starting retrieve and rerank")
	res, err := stage.Transform(c.Context, queries)
	if err != nil {
		return err
	}
	res.Reorder(frame.CanonicalOrder...)
	e.logger.Info().Int("results", res.Len()).Msg("Rerank complete")

	return writeResults(e.out, res)
}

func scoringStage(cfg *config.Config, kind, model string, inf pinecone.Inference) (pipeline.Transformer, error) {
	switch kind {
	case kindRerank:
		if model == "" {
			model = cfg.Pinecone.RerankModel
		}
		return pinecone.NewReranker(inf, model), nil
	case kindSparse:
		if model == "" {
			model = cfg.Pinecone.SparseModel
		}
		return pinecone.NewSparseModel(inf, model).Scorer(), nil
	case kindDense:
		if model == "" {
			model = cfg.Pinecone.DenseModel
		}
		return pinecone.NewDenseModel(inf, model).Scorer(), nil
	default:
		return nil, errors.WithHintf(errors.Newf("unknown scoring stage %q", kind),
			"use %s, %s or %s", kindRerank, kindSparse, kindDense)
	}
}

// documentText sets the text column to the non-empty values of fields
// joined by a space.
func documentText(fields []string) pipeline.TransformFunc {
	return func(_ context.Context, inp *frame.Frame) (*frame.Frame, error) {
		out := inp.Copy()
		texts := make([]any, out.Len())
		for i := range out.Rows {
			parts := make([]string, 0, len(fields))
			for _, f := range fields {
				if s := strings.TrimSpace(out.String(i, f)); s != "" {
					parts = append(parts, s)
				}
			}
			texts[i] = strings.Join(parts, " ")
		}
		if err := out.Assign(frame.ColText, texts); err != nil {
			return nil, err
		}
		return out, nil
	}
}
