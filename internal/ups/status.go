package ups

import "strings"

// DeviceUnreachable is the status sentinel for a device whose variables
// could not be fetched.
const DeviceUnreachable = "DEVICE_UNREACHABLE"

// notApplicable is reported by some drivers in place of a missing value.
const notApplicable = "0"

// statusLabels maps NUT status codes to operator-facing labels.
var statusLabels = map[string]string{
	"OL":              "Online",
	"OL CHRG":         "Online Charging",
	"OB":              "On Battery",
	"LB":              "Low Battery",
	"HB":              "High Battery",
	"RB":              "Battery Needs Replaced",
	"CHRG":            "Battery Charging",
	"DISCHRG":         "Battery Discharging",
	"BYPASS":          "Bypass Active",
	"CAL":             "Runtime Calibration",
	"OFF":             "Offline",
	"OVER":            "Overloaded",
	"TRIM":            "Trimming Voltage",
	"BOOST":           "Boosting Voltage",
	"FSD":             "Forced Shutdown",
	"ALARM":           "Alarm",
	DeviceUnreachable: "Device Unreachable",
}

// Classify maps a raw ups.status value to a status category and label.
// Rules are checked in order and the first match wins, so "OL CHRG" is
// CHARGING rather than NORMAL.
func Classify(raw string) StatusClassification {
	if raw == "" || raw == notApplicable {
		return StatusClassification{Raw: raw, Category: StatusUnknown}
	}

	var category StatusCategory
	switch {
	case raw == DeviceUnreachable:
		category = StatusUnreachable
	case strings.HasPrefix(raw, "OL") && hasToken(raw, "CHRG"):
		category = StatusCharging
	case strings.HasPrefix(raw, "OL"):
		category = StatusNormal
	case strings.HasPrefix(raw, "OB"):
		category = StatusOnBattery
	case strings.HasPrefix(raw, "LB"):
		category = StatusLowBattery
	default:
		return StatusClassification{Raw: raw, Category: StatusUnknown, Label: raw}
	}
	return StatusClassification{Raw: raw, Category: category, Label: statusLabel(raw)}
}

// statusLabel looks up raw in the label table, falling back to a per-token
// rendering for composite codes such as "OB DISCHRG".
func statusLabel(raw string) string {
	if label, ok := statusLabels[raw]; ok {
		return label
	}
	tokens := strings.Fields(raw)
	labels := make([]string, len(tokens))
	for i, tok := range tokens {
		if label, ok := statusLabels[tok]; ok {
			labels[i] = label
		} else {
			labels[i] = tok
		}
	}
	return strings.Join(labels, ", ")
}

// hasToken reports whether tok appears as a whole word in raw. A substring
// test would misread "OL DISCHRG" as charging.
func hasToken(raw, tok string) bool {
	for _, f := range strings.Fields(raw) {
		if f == tok {
			return true
		}
	}
	return false
}
