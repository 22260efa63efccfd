package device

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
)

// suggestCacheSize bounds the fuzzy-suggestion result cache. Misspelled
// names repeat across turns when a user keeps retyping.
const suggestCacheSize = 256

// Store is the device catalog snapshot. The base map and index are
// immutable after construction; request-scoped additions live in an
// overlay created with WithOverlay.
type Store struct {
	base    map[string]Device
	overlay map[string]Device // nil on the shared store
	parent  *Store

	index        *nameIndex
	productNames []string

	suggestCache *lru.Cache[string, []Suggestion]
}

// NewStore builds a store from catalog records. Records without an id are
// skipped.
func NewStore(devices []Device) *Store {
	base := make(map[string]Device, len(devices))
	nameSet := make(map[string]struct{})
	for _, d := range devices {
		id := d.ID()
		if id == "" {
			continue
		}
		base[id] = d
		if pn := d.ProductName(); pn != "" {
			nameSet[pn] = struct{}{}
		}
	}

	names := make([]string, 0, len(nameSet))
	for n := range nameSet {
		names = append(names, n)
	}
	sort.Strings(names)

	cache, _ := lru.New[string, []Suggestion](suggestCacheSize)

	return &Store{
		base:         base,
		index:        buildIndex(base),
		productNames: names,
		suggestCache: cache,
	}
}

// Load reads a JSON catalog file: either an array of records or an object
// keyed by id.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("device: reading catalog %s: %w", path, err)
	}

	var asList []Device
	if err := json.Unmarshal(raw, &asList); err == nil {
		return NewStore(asList), nil
	}

	var asMap map[string]Device
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, fmt.Errorf("device: parsing catalog %s: %w", path, err)
	}
	devices := make([]Device, 0, len(asMap))
	for id, d := range asMap {
		if d.ID() == "" {
			d[FieldID] = id
		}
		devices = append(devices, d)
	}
	return NewStore(devices), nil
}

// Get returns the record for an id. Overlay records shadow the base.
func (s *Store) Get(id string) (Device, bool) {
	if s.overlay != nil {
		if d, ok := s.overlay[id]; ok {
			return d, true
		}
	}
	d, ok := s.root().base[id]
	return d, ok
}

// Len returns the number of records, including overlay additions.
func (s *Store) Len() int {
	return len(s.root().base) + len(s.overlay)
}

// All invokes fn for every record until fn returns false. Overlay records
// are visited after the base snapshot.
func (s *Store) All(fn func(Device) bool) {
	for _, d := range s.root().base {
		if !fn(d) {
			return
		}
	}
	for _, d := range s.overlay {
		if !fn(d) {
			return
		}
	}
}

// ProductNames returns the sorted distinct product names of the base
// snapshot.
func (s *Store) ProductNames() []string {
	return s.root().productNames
}

// WithOverlay derives a request-scoped store that can accept synthetic
// records without touching the shared snapshot. The overlay shares the
// base map, index, and caches with its parent.
func (s *Store) WithOverlay() *Store {
	return &Store{
		overlay: make(map[string]Device),
		parent:  s.root(),
	}
}

// Inject adds a synthetic record to an overlay store. Panics when called
// on the shared snapshot; synthetic devices are request-scoped only.
func (s *Store) Inject(d Device) {
	if s.overlay == nil {
		panic("device: Inject on shared store")
	}
	s.overlay[d.ID()] = d
}

// root resolves the store holding the base snapshot.
func (s *Store) root() *Store {
	if s.parent != nil {
		return s.parent
	}
	return s
}
