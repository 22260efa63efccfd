package dbengine

import (
	"bytes"
	"encoding/json"

	"github.com/cathlab/stackcheck/internal/device"
)

// FieldValue is one named spec value. Records keep their fields as
// ordered lists so summaries render in a stable order.
type FieldValue struct {
	Name  string
	Value any
}

// FieldList marshals as a JSON object, preserving field order.
type FieldList []FieldValue

func (fl FieldList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fv := range fl {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(fv.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(fv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns a field by name.
func (fl FieldList) Get(name string) (any, bool) {
	for _, fv := range fl {
		if fv.Name == name {
			return fv.Value, true
		}
	}
	return nil, false
}

// SpecRecord is the client-facing view of one catalog record: identity
// plus the populated dimension and compatibility-rule fields under their
// friendly names.
type SpecRecord struct {
	DeviceID        string    `json:"device_id"`
	ProductName     string    `json:"product_name"`
	DeviceName      string    `json:"device_name"`
	Manufacturer    string    `json:"manufacturer"`
	ConicalCategory string    `json:"conical_category"`
	LogicCategory   string    `json:"logic_category"`
	Specifications  FieldList `json:"specifications"`
	Compatibility   FieldList `json:"compatibility"`

	// Set by find_compatible and search_both_id_od respectively.
	CompatibilityReason string  `json:"compatibility_reason,omitempty"`
	MatchedField        string  `json:"matched_field,omitempty"`
	MatchedValue        float64 `json:"matched_value,omitempty"`
}

// SpecFloat returns a numeric specification field by friendly name.
func (r SpecRecord) SpecFloat(name string) (float64, bool) {
	v, ok := r.Specifications.Get(name)
	if !ok {
		return 0, false
	}
	return asFloat(v)
}

var specFieldOrder = []struct{ catalog, friendly string }{
	{device.SpecField("inner-diameter", "in"), "ID_in"},
	{device.SpecField("inner-diameter", "mm"), "ID_mm"},
	{device.SpecField("inner-diameter", "F"), "ID_Fr"},
	{device.SpecField("outer-diameter-distal", "in"), "OD_distal_in"},
	{device.SpecField("outer-diameter-distal", "mm"), "OD_distal_mm"},
	{device.SpecField("outer-diameter-distal", "F"), "OD_distal_Fr"},
	{device.SpecField("outer-diameter-proximal", "in"), "OD_proximal_in"},
	{device.SpecField("outer-diameter-proximal", "mm"), "OD_proximal_mm"},
	{device.SpecField("outer-diameter-proximal", "F"), "OD_proximal_Fr"},
	{device.FieldLengthCM, "length_cm"},
}

var compatFieldOrder = []struct{ catalog, friendly string }{
	{device.CompatField("wire_max_outer-diameter", "in"), "wire_max_OD_in"},
	{device.CompatField("wire_max_outer-diameter", "mm"), "wire_max_OD_mm"},
	{device.CompatField("catheter_max_outer-diameter", "in"), "catheter_max_OD_in"},
	{device.CompatField("catheter_max_outer-diameter", "mm"), "catheter_max_OD_mm"},
	{device.CompatField("catheter_req_inner-diameter", "in"), "catheter_required_ID_in"},
	{device.CompatField("catheter_req_inner-diameter", "mm"), "catheter_required_ID_mm"},
	{device.CompatField("guide_or_catheter_or_sheath_min_inner-diameter", "in"), "guide_min_ID_in"},
	{device.CompatField("guide_or_catheter_or_sheath_min_inner-diameter", "mm"), "guide_min_ID_mm"},
}

// ExtractSpecs builds the SpecRecord for one catalog id. The second
// result is false when the id is unknown.
func ExtractSpecs(db *device.Store, id string) (SpecRecord, bool) {
	d, ok := db.Get(id)
	if !ok {
		return SpecRecord{}, false
	}

	rec := SpecRecord{
		DeviceID:        id,
		ProductName:     strOr(d, device.FieldProductName, "Unknown"),
		DeviceName:      strOr(d, device.FieldDeviceName, "Unknown"),
		Manufacturer:    strOr(d, device.FieldManufacturer, "Unknown"),
		ConicalCategory: strOr(d, device.FieldConicalCategory, "Unknown"),
		LogicCategory:   strOr(d, device.FieldLogicCategory, "Unknown"),
	}
	for _, f := range specFieldOrder {
		if v, ok := presentValue(d, f.catalog); ok {
			rec.Specifications = append(rec.Specifications, FieldValue{Name: f.friendly, Value: v})
		}
	}
	for _, f := range compatFieldOrder {
		if v, ok := presentValue(d, f.catalog); ok {
			rec.Compatibility = append(rec.Compatibility, FieldValue{Name: f.friendly, Value: v})
		}
	}
	return rec, true
}

func strOr(d device.Device, field, fallback string) string {
	if s := d.Str(field); s != "" {
		return s
	}
	return fallback
}

func presentValue(d device.Device, field string) (any, bool) {
	v, ok := d[field]
	if !ok || v == nil || v == "" {
		return nil, false
	}
	return v, true
}
