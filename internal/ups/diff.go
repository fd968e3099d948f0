package ups

import "sort"

// DiffResult reports whether the watched view of two snapshots differs.
type DiffResult struct {
	Changed bool `json:"changed"`
	// ChangedDeviceIDs is sorted and holds each id at most once.
	ChangedDeviceIDs []string `json:"changed_device_ids"`
}

// Contains reports whether id is among the changed devices.
func (r DiffResult) Contains(id string) bool {
	i := sort.SearchStrings(r.ChangedDeviceIDs, id)
	return i < len(r.ChangedDeviceIDs) && r.ChangedDeviceIDs[i] == id
}

// Diff compares prev and curr on device name, description and the values of
// the watched variables only. A nil prev marks every device as changed.
// Devices are paired by id; an id present on one side only is a change.
// A variable absent on both sides is unchanged.
func Diff(prev, curr *Snapshot, watched []string) DiffResult {
	if curr == nil {
		curr = &Snapshot{}
	}
	if prev == nil {
		ids := curr.IDs()
		return DiffResult{Changed: true, ChangedDeviceIDs: uniqueSorted(ids)}
	}

	changed := make(map[string]struct{})
	for _, d := range curr.devices {
		p, ok := prev.Device(d.ID)
		if !ok || deviceChanged(p, d, watched) {
			changed[d.ID] = struct{}{}
		}
	}
	for _, p := range prev.devices {
		if _, ok := curr.Device(p.ID); !ok {
			changed[p.ID] = struct{}{}
		}
	}

	ids := make([]string, 0, len(changed))
	for id := range changed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return DiffResult{
		Changed:          len(ids) > 0 || prev.Len() != curr.Len(),
		ChangedDeviceIDs: ids,
	}
}

func deviceChanged(prev, curr Device, watched []string) bool {
	if prev.Name != curr.Name || prev.Description != curr.Description {
		return true
	}
	for _, name := range watched {
		pv, pok := prev.vars[name]
		cv, cok := curr.vars[name]
		if pok != cok {
			return true
		}
		if pok && !pv.Equal(cv) {
			return true
		}
	}
	return false
}

func uniqueSorted(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
