// Package pipeline provides the combinators that turn a single-query,
// offset/limit search call into a batch retrieval stage.
//
// The combinators compose in a fixed order:
//
//	search := pipeline.Retry(service.SearchPage, pipeline.DefaultRetries)
//	perQuery := pipeline.Paginate(search, 100)
//	stage := pipeline.MultiQuery(perQuery, pipeline.WithProgress(pipeline.NewLogProgress(logger)))
//	results, err := stage.Transform(ctx, queries)
//
//   - Retry re-invokes the search on HTTP errors (no backoff).
//   - Paginate requests pages until enough rows arrived or the service
//     signals exhaustion.
//   - MultiQuery runs the per-query function over every row of a query
//     frame, broadcasts the row's columns onto its results and orders the
//     output columns qid, query, docno, score, rank, then the rest.
//
// Everything runs sequentially on the caller's goroutine. The first error
// aborts the whole transform.
package pipeline
