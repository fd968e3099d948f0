package ups

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jamesprial/upswatch/internal/safety"
	"golang.org/x/sync/errgroup"
)

// FetchAll lists the source's devices and fetches each device's variables
// concurrently, at most limit at a time, each bounded by timeout. A failing
// device is returned with Err set; only a failed listing fails the call.
func FetchAll(ctx context.Context, src DeviceSource, timeout time.Duration, limit int) ([]RawDevice, error) {
	infos, err := src.ListDevices(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	out := make([]RawDevice, len(infos))
	g := new(errgroup.Group)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, info := range infos {
		g.Go(func() error {
			out[i] = fetchOne(ctx, src, info, timeout)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetchOne bounds one device's fetch by timeout. A source that ignores ctx
// is abandoned when ctx ends; its late result is discarded.
func fetchOne(ctx context.Context, src DeviceSource, info DeviceInfo, timeout time.Duration) RawDevice {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		vars []RawVariable
		err  error
	}
	done := make(chan result, 1)
	go func() {
		vars, err := src.Variables(ctx, info.ID)
		done <- result{vars: vars, err: err}
	}()

	var res result
	select {
	case res = <-done:
		if res.err == nil && ctx.Err() != nil {
			res.err = ctx.Err()
		}
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err != nil {
		return RawDevice{DeviceInfo: info, Err: fmt.Errorf("fetch %s: %w", info.ID, res.err)}
	}
	return RawDevice{DeviceInfo: info, Vars: res.vars}
}

// FilteredSource hides devices rejected by an allow/deny filter.
type FilteredSource struct {
	src    DeviceSource
	filter *safety.Filter
}

var _ DeviceSource = (*FilteredSource)(nil)

// NewFilteredSource wraps src. A nil filter allows everything.
func NewFilteredSource(src DeviceSource, filter *safety.Filter) *FilteredSource {
	return &FilteredSource{src: src, filter: filter}
}

func (f *FilteredSource) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	infos, err := f.src.ListDevices(ctx)
	if err != nil || f.filter == nil {
		return infos, err
	}
	kept := infos[:0:0]
	for _, info := range infos {
		if f.filter.IsAllowed(info.ID) {
			kept = append(kept, info)
		}
	}
	return kept, nil
}

func (f *FilteredSource) Variables(ctx context.Context, id string) ([]RawVariable, error) {
	if f.filter != nil && !f.filter.IsAllowed(id) {
		return nil, fmt.Errorf("device %q is not allowed", id)
	}
	return f.src.Variables(ctx, id)
}

// NamedSource is one member of a MultiSource.
type NamedSource struct {
	Name   string
	Source DeviceSource
}

// MultiSource merges several sources. With more than one member, device ids
// are qualified as "<name>/<id>". Listing succeeds while at least one
// member answers.
type MultiSource struct {
	members []NamedSource
}

var _ DeviceSource = (*MultiSource)(nil)

// NewMultiSource returns a MultiSource over members.
func NewMultiSource(members ...NamedSource) *MultiSource {
	return &MultiSource{members: members}
}

func (m *MultiSource) qualified() bool { return len(m.members) > 1 }

func (m *MultiSource) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	if len(m.members) == 0 {
		return nil, errors.New("no device sources configured")
	}
	var (
		all  []DeviceInfo
		errs []error
		ok   bool
	)
	for _, member := range m.members {
		infos, err := member.Source.ListDevices(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", member.Name, err))
			continue
		}
		ok = true
		for _, info := range infos {
			if m.qualified() {
				info.ID = member.Name + "/" + info.ID
			}
			all = append(all, info)
		}
	}
	if !ok {
		return nil, errors.Join(errs...)
	}
	return all, nil
}

func (m *MultiSource) Variables(ctx context.Context, id string) ([]RawVariable, error) {
	if !m.qualified() {
		if len(m.members) == 0 {
			return nil, errors.New("no device sources configured")
		}
		return m.members[0].Source.Variables(ctx, id)
	}
	name, local, found := strings.Cut(id, "/")
	if !found {
		return nil, fmt.Errorf("device id %q has no source prefix", id)
	}
	for _, member := range m.members {
		if member.Name == name {
			return member.Source.Variables(ctx, local)
		}
	}
	return nil, fmt.Errorf("unknown device source %q", name)
}
