package rerank

import (
	"context"
	"log/slog"
	"sort"

	"github.com/mikeboe/raggle/pkg/models"
)

// Scorer assigns one relevance score per candidate document, higher =
// more relevant. Implementations are finer-grained (and slower) than the
// first-pass vector distance.
type Scorer interface {
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
}

// Reranker reorders a retrieval result by cross-scoring each candidate
// against the query. All parallel arrays of the result move in lockstep
// through one shared permutation; a scoring failure leaves the input
// order untouched.
type Reranker struct {
	scorer Scorer
	logger *slog.Logger
}

func New(scorer Scorer, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{scorer: scorer, logger: logger}
}

// Rerank returns a copy of results sorted by descending relevance score,
// with ties keeping their original retrieval order. The RerankScores
// array is attached aligned to the new order.
func (r *Reranker) Rerank(ctx context.Context, query string, results *models.RetrievalResult) *models.RetrievalResult {
	n := results.Len()
	if n == 0 {
		r.logger.Info("Nothing to rerank, returning input unchanged")
		return results
	}

	scores, err := r.scorer.Score(ctx, query, results.Documents)
	if err != nil {
		r.logger.Error("Rerank scoring failed, keeping retrieval order", "error", err)
		return results
	}
	if len(scores) != n {
		r.logger.Error("Rerank scorer returned wrong count, keeping retrieval order",
			"want", n, "got", len(scores))
		return results
	}

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return scores[perm[i]] > scores[perm[j]]
	})

	out := results.Clone()
	if err := out.ApplyPermutation(perm); err != nil {
		r.logger.Error("Rerank permutation failed, keeping retrieval order", "error", err)
		return results
	}
	reordered := make([]float64, n)
	for i, p := range perm {
		reordered[i] = scores[p]
	}
	out.RerankScores = reordered

	r.logger.Info("Reranked retrieval results", "candidates", n)
	return out
}
