package chain

import (
	"strings"

	"github.com/cathlab/stackcheck/internal/device"
)

// FlatRecord is one pair evaluation flattened for tabular output, with
// the distal (inner) and proximal (outer) spec fields clients chart.
type FlatRecord struct {
	ConstructOptionID  int    `json:"construct_option_id"`
	ConstructDevices   string `json:"construct_devices"`
	InterfaceOrder     int    `json:"interface_order"`
	Connection         string `json:"device_to_device_connection"`
	DistalFamily       string `json:"distal_device_family"`
	DistalModel        string `json:"distal_device_model"`
	ProximalFamily     string `json:"proximal_device_family"`
	ProximalModel      string `json:"proximal_device_model"`
	EvaluationMethod   string `json:"evaluation_method"`
	Result             string `json:"compatibility_result"`
	DistalODIn         any    `json:"distal_od_in"`
	DistalIDIn         any    `json:"distal_id_in"`
	DistalLengthCM     any    `json:"distal_length_cm"`
	DistalManufacturer string `json:"distal_manufacturer"`
	ProxODIn           any    `json:"proximal_od_in"`
	ProxIDIn           any    `json:"proximal_id_in"`
	ProxLengthCM       any    `json:"proximal_length_cm"`
	ProxManufacturer   string `json:"proximal_manufacturer"`
	LogicType          string `json:"logic_type"`
}

// Flatten walks the processed tree and emits one record per evaluated pair.
func Flatten(processed []*ChainResult) []FlatRecord {
	var data []FlatRecord
	for _, chain := range processed {
		for _, path := range chain.Paths {
			pathStr := strings.Join(path.Path, " - ")
			for connIdx, conn := range path.Connections {
				link := conn.InnerDevice + " - " + conn.OuterDevice
				for _, pair := range conn.Pairs {
					data = append(data, flattenPair(chain.Index, pathStr, connIdx+1, link, pair))
				}
			}
		}
	}
	return data
}

func flattenPair(chainIndex int, pathStr string, connIndex int, link string, pair *Pair) FlatRecord {
	status, logicType := "", ""
	if pair.Overall != nil {
		status = string(pair.Overall.Status)
		logicType = pair.Overall.LogicType
	}

	result := status
	switch {
	case strings.Contains(strings.ToLower(status), "pass"):
		result = "Compatible"
	case status == string(StatusFail):
		result = "Not Compatible"
	}

	method := logicType
	switch logicType {
	case LogicCompat:
		method = "IFU"
	case LogicMath:
		method = "Specifications"
	}

	odField := device.SpecField("outer-diameter-distal", "in")
	idField := device.SpecField("inner-diameter", "in")

	return FlatRecord{
		ConstructOptionID:  chainIndex,
		ConstructDevices:   pathStr,
		InterfaceOrder:     connIndex,
		Connection:         link,
		DistalFamily:       pair.Inner.ProductName(),
		DistalModel:        pair.Inner.DeviceName(),
		ProximalFamily:     pair.Outer.ProductName(),
		ProximalModel:      pair.Outer.DeviceName(),
		EvaluationMethod:   method,
		Result:             result,
		DistalODIn:         pair.Inner[odField],
		DistalIDIn:         pair.Inner[idField],
		DistalLengthCM:     pair.Inner[device.FieldLengthCM],
		DistalManufacturer: pair.Inner.Manufacturer(),
		ProxODIn:           pair.Outer[odField],
		ProxIDIn:           pair.Outer[idField],
		ProxLengthCM:       pair.Outer[device.FieldLengthCM],
		ProxManufacturer:   pair.Outer.Manufacturer(),
		LogicType:          logicType,
	}
}
