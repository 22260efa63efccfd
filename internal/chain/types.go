// Package chain evaluates telescoping device stacks: it generates every
// variant pairing for a chain configuration, grades each pair on IFU
// compatibility claims and raw geometry, rolls results up to chain level,
// and renders deterministic text summaries.
package chain

import (
	"github.com/cathlab/stackcheck/internal/device"
)

// Status is a pair, subset, or rollup verdict.
type Status string

const (
	StatusPass            Status = "pass"
	StatusPassWithWarning Status = "pass_with_warning"
	StatusWarning         Status = "warning"
	StatusFail            Status = "fail"
	StatusNA              Status = "NA"
)

// Passing reports whether the status counts as a pass for rollups.
func (s Status) Passing() bool {
	return s == StatusPass || s == StatusPassWithWarning
}

// Config is one chain to evaluate: product names ordered innermost first,
// with the conical level of each position.
type Config struct {
	Sequence         []string `json:"sequence"`
	Levels           []string `json:"levels"`
	ContainsCategory bool     `json:"contains_category"`
}

// DeviceRef resolves a product name to its variant ids and conical level.
type DeviceRef struct {
	IDs             []string `json:"ids"`
	ConicalCategory string   `json:"conical_category"`
}

// CompatRow is one evaluated compatibility claim. Role identifies the
// claimant ("inner" or "outer"); the claim is checked against the other
// device's specification field.
type CompatRow struct {
	Role               string `json:"type"`
	ID                 string `json:"id"`
	DeviceName         string `json:"device_name"`
	LogicCategory      string `json:"logic_category"`
	CompatField        string `json:"compatibility_field"`
	CompatValue        any    `json:"compat_value"`
	FitLogic           string `json:"fit_logic"`
	OtherID            string `json:"other_id"`
	OtherDeviceName    string `json:"other_device_name"`
	OtherLogicCategory string `json:"other_logic_category"`
	SpecField          string `json:"specification_field"`
	SpecValue          any    `json:"spec_value"`
	ApplicableCategory bool   `json:"applicable_category"`
	ApplicableSpec     bool   `json:"applicable_spec_field"`
	Status             Status `json:"status"`
	Note               string `json:"note,omitempty"`
}

// GeometryRow is one raw dimensional comparison between the outer device's
// inner envelope and the inner device's outer envelope. Difference is nil
// when either value is missing.
type GeometryRow struct {
	OuterID            string   `json:"outer_device_id"`
	OuterName          string   `json:"outer_device_name"`
	OuterLogicCategory string   `json:"outer_device_logic_category"`
	OuterField         string   `json:"outer_device_specification_field"`
	OuterValue         any      `json:"outer_device_specification_value"`
	InnerID            string   `json:"inner_device_id"`
	InnerName          string   `json:"inner_device_name"`
	InnerLogicCategory string   `json:"inner_device_logic_category"`
	InnerField         string   `json:"inner_device_specification_field"`
	InnerValue         any      `json:"inner_device_specification_value"`
	Difference         *float64 `json:"difference"`
	Status             Status   `json:"status"`
	Note               string   `json:"note,omitempty"`
}

// CompatStatus is the pair-level compatibility verdict with the rows that
// support it.
type CompatStatus struct {
	Status         Status       `json:"status"`
	Notes          []string     `json:"notes,omitempty"`
	SupportingRows []*CompatRow `json:"supporting_rows"`
}

// GeometrySubset is the verdict for the diameter or length subset.
type GeometrySubset struct {
	Status         Status         `json:"status"`
	Notes          []string       `json:"notes,omitempty"`
	SupportingRows []*GeometryRow `json:"supporting_rows"`
}

// GeometryStatus combines the diameter and length subset verdicts.
type GeometryStatus struct {
	Status         Status          `json:"status"`
	Diameter       *GeometrySubset `json:"diameter_status"`
	Length         *GeometrySubset `json:"length_status"`
	SupportingRows []*GeometryRow  `json:"supporting_rows"`
}

// OverallStatus is the pair verdict after combining the compatibility and
// geometry tracks. LogicType records which track decided it.
type OverallStatus struct {
	Status        Status          `json:"status"`
	LogicType     string          `json:"logic_type"`
	Compatibility *CompatStatus   `json:"compatibility_status"`
	Geometry      *GeometryStatus `json:"geometry_status"`
}

// Logic types recorded on OverallStatus.
const (
	LogicMath             = "math"
	LogicCompat           = "compat"
	LogicGeometryFallback = "geometry_fallback"
	LogicCompatLengthFail = "compat+length_fail"
	LogicCompatGeoWarning = "compat+geometry_warning"
)

// Pair is one inner/outer variant combination. Evaluation fills the result
// fields in place.
type Pair struct {
	Key       string        `json:"pair_key"`
	Inner     device.Device `json:"inner"`
	Outer     device.Device `json:"outer"`
	InnerID   string        `json:"inner_id"`
	OuterID   string        `json:"outer_id"`
	InnerName string        `json:"inner_name"`
	OuterName string        `json:"outer_name"`

	CompatRows    []*CompatRow    `json:"compatibility_results,omitempty"`
	GeometryRows  []*GeometryRow  `json:"geometry_results,omitempty"`
	Compatibility *CompatStatus   `json:"compatibility_status,omitempty"`
	Geometry      *GeometryStatus `json:"geometry_status,omitempty"`
	Overall       *OverallStatus  `json:"overall_status,omitempty"`
}

// Connection types.
const (
	IntraLevel = "intra_level"
	InterLevel = "inter_level"
)

// Connection is one adjacent product-to-product junction with every
// variant pairing across it.
type Connection struct {
	Connection     string  `json:"connection"`
	ConnectionType string  `json:"connection_type"`
	InnerDevice    string  `json:"inner_device"`
	OuterDevice    string  `json:"outer_device"`
	Pairs          []*Pair `json:"processed_pairs"`
}

// Path is one ordering of the chain's products.
type Path struct {
	Index       int           `json:"path_index"`
	Path        []string      `json:"path"`
	Connections []*Connection `json:"connections"`
}

// ChainResult is one chain configuration with its generated paths.
type ChainResult struct {
	Index        int      `json:"chain_index"`
	ActiveLevels []string `json:"active_levels"`
	Sequence     []string `json:"sequence"`
	Levels       []string `json:"levels"`
	TotalPaths   int      `json:"total_paths"`
	Paths        []*Path  `json:"paths"`
}
