package storage

import (
	"sort"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/models/modelstorage"
)

// NormalizePostings merges postings touching the same balance and orders them by user and currency so that
// concurrent ledger transactions lock balance rows in the same order.
func NormalizePostings(postings []modelstorage.Posting) []modelstorage.Posting {
	type key struct{ user, code string }
	merged := make(map[key]int, len(postings))
	var out []modelstorage.Posting
	for _, p := range postings {
		k := key{p.UserID, p.CurrencyCode}
		if i, ok := merged[k]; ok {
			out[i].Delta = out[i].Delta.Add(p.Delta)
			continue
		}
		merged[k] = len(out)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].CurrencyCode < out[j].CurrencyCode
	})
	return out
}
