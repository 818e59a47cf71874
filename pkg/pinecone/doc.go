// Package pinecone adapts the Pinecone inference API (embed and rerank)
// into retrieval stages.
//
// SparseModel and DenseModel pick their behavior from the input columns:
//
//	qid, query (no docno)         query encoder, adds query_toks / query_vec
//	docno, text (no qid)          document encoder, adds toks / doc_vec
//	qid, query, docno, text       scorer, adds score and rank
//
// Scoring is the dot product of the encodings, a weighted sum over shared
// tokens for sparse models, so encoding queries and documents separately
// and combining them with SparseDot or DenseDot yields the scorer's scores.
//
// Reranker rescores retrieved candidates per query with a rerank model.
package pinecone
