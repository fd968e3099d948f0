// Package ups provides types and interfaces for UPS device monitoring.
package ups

import (
	"context"
	"encoding/json"
	"fmt"
)

// VariableType is the normalized type of a device variable.
type VariableType int

const (
	TypeString VariableType = iota
	TypeNumber
	TypeBoolean
)

// String returns the wire name of t.
func (t VariableType) String() string {
	switch t {
	case TypeNumber:
		return "NUMBER"
	case TypeBoolean:
		return "BOOLEAN"
	default:
		return "STRING"
	}
}

// MarshalJSON encodes t as its wire name.
func (t VariableType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// RawVariable is a single variable as received from a device source.
// Value is a string, a Go number or a bool; Type is the declared type and
// may be empty when the source does not provide one.
type RawVariable struct {
	Name  string
	Value any
	Type  string
}

// DeviceInfo identifies a device advertised by a source.
type DeviceInfo struct {
	ID          string
	Name        string
	Description string
}

// RawDevice is one device's fetch result. Err is set when the variable fetch
// failed; Vars is then ignored.
type RawDevice struct {
	DeviceInfo
	Vars []RawVariable
	Err  error
}

// DeviceSource is the upstream power-management service.
type DeviceSource interface {
	ListDevices(ctx context.Context) ([]DeviceInfo, error)
	Variables(ctx context.Context, id string) ([]RawVariable, error)
}

// StatusCategory is the semantic classification of a raw status code.
type StatusCategory int

const (
	StatusUnknown StatusCategory = iota
	StatusNormal
	StatusCharging
	StatusOnBattery
	StatusLowBattery
	StatusUnreachable
)

var statusCategoryNames = map[StatusCategory]string{
	StatusUnknown:     "UNKNOWN",
	StatusNormal:      "NORMAL",
	StatusCharging:    "CHARGING",
	StatusOnBattery:   "ON_BATTERY",
	StatusLowBattery:  "LOW_BATTERY",
	StatusUnreachable: "UNREACHABLE",
}

func (c StatusCategory) String() string {
	if s, ok := statusCategoryNames[c]; ok {
		return s
	}
	return fmt.Sprintf("StatusCategory(%d)", int(c))
}

// MarshalJSON encodes c as its name.
func (c StatusCategory) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// StatusClassification is derived from a device's ups.status variable.
type StatusClassification struct {
	Raw      string         `json:"raw"`
	Category StatusCategory `json:"category"`
	Label    string         `json:"label"`
}

// Well-known variable names.
const (
	VarStatus        = "ups.status"
	VarBatteryCharge = "battery.charge"
	VarLoad          = "ups.load"
)

// DefaultWatchedFields are the variables the device grid renders.
var DefaultWatchedFields = []string{VarStatus, VarBatteryCharge, VarLoad}
