package ups

import "sync/atomic"

// Store holds the current snapshot. Publish is called by a single poller;
// any number of readers may call the lookup methods concurrently and always
// observe either the old or the new snapshot in full.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Publish makes s current and returns the snapshot it replaced (nil on the
// first publish).
func (st *Store) Publish(s *Snapshot) *Snapshot {
	return st.current.Swap(s)
}

// Latest returns the current snapshot or ErrNoSnapshotYet.
func (st *Store) Latest() (*Snapshot, error) {
	s := st.current.Load()
	if s == nil {
		return nil, ErrNoSnapshotYet
	}
	return s, nil
}

// GetDevice returns the device with the given id.
func (st *Store) GetDevice(id string) (Device, error) {
	s, err := st.Latest()
	if err != nil {
		return Device{}, err
	}
	d, ok := s.Device(id)
	if !ok {
		return Device{}, &LookupError{Device: id, Err: ErrDeviceNotFound}
	}
	return d, nil
}

// GetVariable returns one variable of a device. A missing device yields
// ErrDeviceNotFound; a present device without the variable yields
// ErrVariableNotFound.
func (st *Store) GetVariable(id, name string) (Variable, error) {
	d, err := st.GetDevice(id)
	if err != nil {
		return Variable{}, err
	}
	v, ok := d.Var(name)
	if !ok {
		return Variable{}, &LookupError{Device: id, Variable: name, Err: ErrVariableNotFound}
	}
	return v, nil
}

// GetVariableType returns only the type of a variable, with the same
// failure modes as GetVariable.
func (st *Store) GetVariableType(id, name string) (VariableType, error) {
	v, err := st.GetVariable(id, name)
	if err != nil {
		return TypeString, err
	}
	return v.Type(), nil
}
