// Package vector searches indexed IFU and 510(k) document chunks for
// passages relevant to a query, scoped to the devices under discussion.
package vector

import "context"

// Filter is a metadata predicate on document attributes. The only type
// the engine emits is "containsany" over device variant ids.
type Filter struct {
	Type  string   `json:"type"`
	Key   string   `json:"key"`
	Value []string `json:"value"`
}

// ContainsAny builds the device-scoping filter.
func ContainsAny(key string, values []string) *Filter {
	return &Filter{Type: "containsany", Key: key, Value: values}
}

// Content is one content item inside a search result. Only "text" items
// carry usable passages.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is one scored document hit from a store.
type Result struct {
	Score      float64        `json:"score"`
	FileID     string         `json:"file_id"`
	Attributes map[string]any `json:"attributes"`
	Content    []Content      `json:"content"`
}

// Store is the similarity-search contract the engine consumes.
type Store interface {
	Search(ctx context.Context, query string, filter *Filter, maxResults int) ([]Result, error)
}
