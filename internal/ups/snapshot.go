package ups

import (
	"encoding/json"
	"log/slog"
	"sort"
	"time"
)

// Device is one UPS as seen by a single poll. Its variables are read-only;
// an empty variable set means the device could not be reached.
type Device struct {
	ID          string
	Name        string
	Description string
	vars        map[string]Variable
}

// Var returns the named variable.
func (d Device) Var(name string) (Variable, bool) {
	v, ok := d.vars[name]
	return v, ok
}

// Len returns the number of variables.
func (d Device) Len() int { return len(d.vars) }

// Reachable reports whether any variables were fetched for d.
func (d Device) Reachable() bool { return len(d.vars) > 0 }

// VarNames returns the variable names in sorted order.
func (d Device) VarNames() []string {
	names := make([]string, 0, len(d.vars))
	for name := range d.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Vars returns a copy of the variable map.
func (d Device) Vars() map[string]Variable {
	out := make(map[string]Variable, len(d.vars))
	for k, v := range d.vars {
		out[k] = v
	}
	return out
}

// Status classifies the device's ups.status variable. A device without any
// variables is UNREACHABLE.
func (d Device) Status() StatusClassification {
	if !d.Reachable() {
		return Classify(DeviceUnreachable)
	}
	v, ok := d.vars[VarStatus]
	if !ok {
		return Classify("")
	}
	return Classify(v.Text())
}

// Percent returns a percentage reading such as battery.charge or ups.load.
// Missing values and the literal 0, which several drivers report for "not
// applicable", both yield ok == false.
func (d Device) Percent(name string) (float64, bool) {
	v, ok := d.vars[name]
	if !ok {
		return 0, false
	}
	f, isNum := v.Number()
	if !isNum || f == 0 {
		return 0, false
	}
	return f, true
}

type deviceJSON struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Vars        map[string]Variable `json:"vars"`
}

// MarshalJSON encodes d including its variables.
func (d Device) MarshalJSON() ([]byte, error) {
	vars := d.vars
	if vars == nil {
		vars = map[string]Variable{}
	}
	return json.Marshal(deviceJSON{ID: d.ID, Name: d.Name, Description: d.Description, Vars: vars})
}

// Snapshot is the immutable result of one poll cycle.
type Snapshot struct {
	takenAt time.Time
	devices []Device
	index   map[string]int
}

// TakenAt returns when the poll that produced s completed.
func (s *Snapshot) TakenAt() time.Time { return s.takenAt }

// Len returns the number of devices.
func (s *Snapshot) Len() int { return len(s.devices) }

// Devices returns the devices in source order.
func (s *Snapshot) Devices() []Device {
	out := make([]Device, len(s.devices))
	copy(out, s.devices)
	return out
}

// Device returns the device with the given id.
func (s *Snapshot) Device(id string) (Device, bool) {
	i, ok := s.index[id]
	if !ok {
		return Device{}, false
	}
	return s.devices[i], true
}

// IDs returns the device ids in source order.
func (s *Snapshot) IDs() []string {
	ids := make([]string, len(s.devices))
	for i, d := range s.devices {
		ids[i] = d.ID
	}
	return ids
}

// Age returns how long ago s was taken.
func (s *Snapshot) Age(now time.Time) time.Duration { return now.Sub(s.takenAt) }

// IsStale reports whether s is older than ttl.
func (s *Snapshot) IsStale(now time.Time, ttl time.Duration) bool { return s.Age(now) > ttl }

// RawDevices converts s back into builder input. Build(s.TakenAt(),
// s.RawDevices(), nil) yields a snapshot equal to s.
func (s *Snapshot) RawDevices() []RawDevice {
	out := make([]RawDevice, len(s.devices))
	for i, d := range s.devices {
		vars := make([]RawVariable, 0, len(d.vars))
		for _, name := range d.VarNames() {
			vars = append(vars, d.vars[name].Raw())
		}
		out[i] = RawDevice{
			DeviceInfo: DeviceInfo{ID: d.ID, Name: d.Name, Description: d.Description},
			Vars:       vars,
		}
	}
	return out
}

type snapshotJSON struct {
	TakenAt time.Time `json:"taken_at"`
	Devices []Device  `json:"devices"`
}

// MarshalJSON encodes s.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{TakenAt: s.takenAt, Devices: s.devices})
}

// Build normalizes raw device data into a new Snapshot. Devices whose fetch
// failed are kept with an empty variable set. Malformed variables and
// duplicate device ids are logged and dropped. A nil logger discards.
func Build(takenAt time.Time, raw []RawDevice, logger *slog.Logger) *Snapshot {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Snapshot{
		takenAt: takenAt,
		devices: make([]Device, 0, len(raw)),
		index:   make(map[string]int, len(raw)),
	}
	for _, rd := range raw {
		if _, dup := s.index[rd.ID]; dup {
			logger.Warn("duplicate device id dropped", "device", rd.ID)
			continue
		}
		d := Device{
			ID:          rd.ID,
			Name:        rd.Name,
			Description: rd.Description,
			vars:        make(map[string]Variable, len(rd.Vars)),
		}
		if rd.Err != nil {
			logger.Warn("device unreachable", "device", rd.ID, "err", rd.Err)
		} else {
			for _, rv := range rd.Vars {
				if err := malformed(rv); err != nil {
					logger.Error("dropping variable", "device", rd.ID, "err", err)
					continue
				}
				d.vars[rv.Name] = Normalize(rv)
			}
		}
		s.index[d.ID] = len(s.devices)
		s.devices = append(s.devices, d)
	}
	return s
}

// Equal reports whether s and o hold structurally equal devices and the
// same timestamp.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	if !s.takenAt.Equal(o.takenAt) || len(s.devices) != len(o.devices) {
		return false
	}
	for i, d := range s.devices {
		if !d.equal(o.devices[i]) {
			return false
		}
	}
	return true
}

func (d Device) equal(o Device) bool {
	if d.ID != o.ID || d.Name != o.Name || d.Description != o.Description || len(d.vars) != len(o.vars) {
		return false
	}
	for name, v := range d.vars {
		ov, ok := o.vars[name]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
