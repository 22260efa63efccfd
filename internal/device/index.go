package device

import (
	"sort"
	"strings"
	"unicode"
)

// searchLimit caps name-search results.
const searchLimit = 100

// tokenize lower-cases and splits a name on non-alphanumeric runs.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// fieldTokens holds one record's tokenized searchable fields. Aliases may
// carry several alternate names separated by ";" or ",".
type fieldTokens struct {
	product      []string
	device       []string
	manufacturer []string
	aliases      [][]string
}

// nameIndex is an inverted index over product_name, device_name, aliases,
// and manufacturer. Built once at startup, read-only afterwards.
type nameIndex struct {
	fields   map[string]fieldTokens // id -> tokens
	postings map[string][]string    // token -> ids (sorted, deduped)

	// Distinct tokens per searchable name field, for the fuzzy tier.
	nameTokens []string
}

func buildIndex(base map[string]Device) *nameIndex {
	idx := &nameIndex{
		fields:   make(map[string]fieldTokens, len(base)),
		postings: make(map[string][]string),
	}

	post := make(map[string]map[string]struct{})
	tokenSet := make(map[string]struct{})

	add := func(id string, tokens []string, searchable bool) {
		for _, tok := range tokens {
			m, ok := post[tok]
			if !ok {
				m = make(map[string]struct{})
				post[tok] = m
			}
			m[id] = struct{}{}
			if searchable {
				tokenSet[tok] = struct{}{}
			}
		}
	}

	for id, d := range base {
		ft := fieldTokens{
			product:      tokenize(d.ProductName()),
			device:       tokenize(d.DeviceName()),
			manufacturer: tokenize(d.Manufacturer()),
		}
		for alias := range strings.SplitSeq(d.Str(FieldAliases), ";") {
			for sub := range strings.SplitSeq(alias, ",") {
				if toks := tokenize(sub); len(toks) > 0 {
					ft.aliases = append(ft.aliases, toks)
				}
			}
		}

		idx.fields[id] = ft
		add(id, ft.product, true)
		add(id, ft.device, true)
		add(id, ft.manufacturer, false)
		for _, a := range ft.aliases {
			add(id, a, true)
		}
	}

	for tok, ids := range post {
		list := make([]string, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		sort.Strings(list)
		idx.postings[tok] = list
	}
	for tok := range tokenSet {
		idx.nameTokens = append(idx.nameTokens, tok)
	}
	sort.Strings(idx.nameTokens)

	return idx
}

// containsPhrase reports whether query appears as a contiguous token run
// inside field.
func containsPhrase(field, query []string) bool {
	if len(query) == 0 || len(query) > len(field) {
		return false
	}
outer:
	for i := 0; i+len(query) <= len(field); i++ {
		for j, q := range query {
			if field[i+j] != q {
				continue outer
			}
		}
		return true
	}
	return false
}

// containsAll reports whether every query token occurs somewhere in field.
func containsAll(field, query []string) bool {
	if len(query) == 0 {
		return false
	}
	for _, q := range query {
		found := false
		for _, f := range field {
			if f == q {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SearchName resolves a free-text product name to candidate device ids.
// A match is the union of: phrase match on product_name, phrase match on
// aliases, conjunctive token match on product_name, conjunctive token
// match on aliases. Phrase matches rank first; ties break on shorter
// product names (tighter match), then id for determinism.
func (s *Store) SearchName(query string) []string {
	idx := s.root().index
	qtoks := tokenize(query)
	if len(qtoks) == 0 {
		return nil
	}

	// Candidates: ids sharing at least one token with the query.
	candidates := make(map[string]struct{})
	for _, tok := range qtoks {
		for _, id := range idx.postings[tok] {
			candidates[id] = struct{}{}
		}
	}

	type scored struct {
		id    string
		tier  int // 0 phrase, 1 conjunctive
		width int
	}
	var matches []scored

	for id := range candidates {
		ft := idx.fields[id]

		phrase := containsPhrase(ft.product, qtoks)
		if !phrase {
			for _, a := range ft.aliases {
				if containsPhrase(a, qtoks) {
					phrase = true
					break
				}
			}
		}

		conj := phrase || containsAll(ft.product, qtoks)
		if !conj {
			for _, a := range ft.aliases {
				if containsAll(a, qtoks) {
					conj = true
					break
				}
			}
		}
		if !conj {
			continue
		}

		tier := 1
		if phrase {
			tier = 0
		}
		matches = append(matches, scored{id: id, tier: tier, width: len(ft.product)})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].tier != matches[j].tier {
			return matches[i].tier < matches[j].tier
		}
		if matches[i].width != matches[j].width {
			return matches[i].width < matches[j].width
		}
		return matches[i].id < matches[j].id
	})

	n := min(len(matches), searchLimit)
	ids := make([]string, n)
	for i := range n {
		ids[i] = matches[i].id
	}
	return ids
}

// GroupsForName resolves a name to product groups: ids grouped by product
// name with the shared conical category.
func (s *Store) GroupsForName(query string) []Group {
	ids := s.SearchName(query)
	if len(ids) == 0 {
		return nil
	}

	byProduct := make(map[string]*Group)
	var order []string
	for _, id := range ids {
		d, ok := s.Get(id)
		if !ok {
			continue
		}
		pn := d.ProductName()
		g, seen := byProduct[pn]
		if !seen {
			g = &Group{ProductName: pn, ConicalCategory: d.ConicalCategory()}
			byProduct[pn] = g
			order = append(order, pn)
		}
		g.IDs = append(g.IDs, id)
	}

	out := make([]Group, 0, len(order))
	for _, pn := range order {
		out = append(out, *byProduct[pn])
	}
	return out
}
