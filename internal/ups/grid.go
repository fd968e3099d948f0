package ups

import "strconv"

// NotAvailable is rendered for readings a device does not report.
const NotAvailable = "N/A"

// GridRow is the tabular projection of one device.
type GridRow struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Status        string         `json:"status"`
	StatusLabel   string         `json:"status_label"`
	Category      StatusCategory `json:"category"`
	BatteryCharge string         `json:"battery_charge"`
	Load          string         `json:"load"`
}

// Visible reports whether d belongs in the device grid: it must have
// variables and a status other than N/A.
func (d Device) Visible() bool {
	if !d.Reachable() {
		return false
	}
	v, ok := d.vars[VarStatus]
	return !ok || v.Text() != NotAvailable
}

// Visible returns the devices that belong in the device grid.
func (s *Snapshot) Visible() []Device {
	out := make([]Device, 0, len(s.devices))
	for _, d := range s.devices {
		if d.Visible() {
			out = append(out, d)
		}
	}
	return out
}

// Row projects d onto a grid row.
func (d Device) Row() GridRow {
	st := d.Status()
	status := st.Raw
	if status == "" || status == notApplicable {
		status = NotAvailable
	}
	label := st.Label
	if label == "" {
		label = status
	}
	return GridRow{
		ID:            d.ID,
		Name:          d.Name,
		Description:   d.Description,
		Status:        status,
		StatusLabel:   label,
		Category:      st.Category,
		BatteryCharge: d.percentCell(VarBatteryCharge),
		Load:          d.percentCell(VarLoad),
	}
}

func (d Device) percentCell(name string) string {
	f, ok := d.Percent(name)
	if !ok {
		return NotAvailable
	}
	return strconv.FormatFloat(f, 'f', -1, 64) + "%"
}

// Grid returns the rows for every visible device, in source order.
func (s *Snapshot) Grid() []GridRow {
	visible := s.Visible()
	rows := make([]GridRow, len(visible))
	for i, d := range visible {
		rows[i] = d.Row()
	}
	return rows
}
