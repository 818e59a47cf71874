package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/Sternrassler/retrieval-services/pkg/frame"
	"github.com/Sternrassler/retrieval-services/pkg/pipeline"
	"github.com/Sternrassler/retrieval-services/pkg/semanticscholar"
	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v2"
)

var errNoQueries = errors.New("no queries given")

func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "query",
			Aliases: []string{"q"},
			Usage:   "Query text; repeatable",
		},
		&cli.StringFlag{
			Name:    "topics",
			Aliases: []string{"t"},
			Usage:   "TSV file of qid<TAB>query lines",
		},
		&cli.IntFlag{
			Name:    "num-results",
			Aliases: []string{"n"},
			Usage:   "Results per query (default from configuration)",
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:   "search",
		Usage:  "Retrieve papers from Semantic Scholar, one JSON object per result",
		Flags:  queryFlags(),
		Action: searchAction,
	}
}

func searchAction(c *cli.Context) error {
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

	retriever := newRetriever(e.cfg, s2, c.Int("num-results"), withLogProgress(e))

	e.logger.Info().Int("queries", queries.Len()).Msg("Starting search")
	res, err := retriever.Transform(c.Context, queries)
	if err != nil {
		return err
	}
	e.logger.Info().Int("results", res.Len()).Msg("Search complete")

	return writeResults(e.out, res)
}

// loadQueries builds the query frame from --query flags and --topics.
func loadQueries(c *cli.Context) (*frame.Frame, error) {
	queries := frame.New(frame.ColQID, frame.ColQuery)

	if path := c.String("topics"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "open topics")
		}
		defer f.Close()
		if err := readTopics(f, queries); err != nil {
			return nil, errors.Wrapf(err, "read topics %s", path)
		}
	}

	for _, q := range c.StringSlice("query") {
		queries.Append(frame.Row{
			frame.ColQID:   nextQID(queries),
			frame.ColQuery: q,
		})
	}
	if c.NArg() > 0 {
		queries.Append(frame.Row{
			frame.ColQID:   nextQID(queries),
			frame.ColQuery: strings.Join(c.Args().Slice(), " "),
		})
	}

	if queries.Len() == 0 {
		return nil, errors.WithHint(errNoQueries, "pass --query, --topics or a positional query")
	}
	return queries, nil
}

// nextQID numbers a query after the rows already present, skipping qids
// taken by topics.
func nextQID(queries *frame.Frame) string {
	used := queries.Strings(frame.ColQID)
	for n := queries.Len() + 1; ; n++ {
		if qid := strconv.Itoa(n); !slices.Contains(used, qid) {
			return qid
		}
	}
}

// readTopics appends qid<TAB>query lines to queries. Blank lines and lines
// starting with # are skipped.
func readTopics(r io.Reader, queries *frame.Frame) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		qid, query, ok := strings.Cut(text, "\t")
		if !ok || strings.TrimSpace(query) == "" {
			return errors.Newf("line %d: expected qid<TAB>query", line)
		}
		queries.Append(frame.Row{
			frame.ColQID:   strings.TrimSpace(qid),
			frame.ColQuery: strings.TrimSpace(query),
		})
	}
	return sc.Err()
}

// writeResults prints one JSON object per row with keys in column order.
func writeResults(w io.Writer, res *frame.Frame) error {
	bw := bufio.NewWriter(w)
	for _, row := range res.Rows {
		b, err := marshalRow(res.Columns, row)
		if err != nil {
			return err
		}
		bw.Write(b)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// marshalRow encodes row as a JSON object whose keys follow columns.
func marshalRow(columns []string, row frame.Row) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(col)
		val, err := json.Marshal(row[col])
		if err != nil {
			return nil, errors.Wrapf(err, "encode column %s", col)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func withLogProgress(e *env) semanticscholar.RetrieverOption {
	return semanticscholar.WithProgress(pipeline.NewLogProgress(e.logger))
}
