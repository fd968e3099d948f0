package safety

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Filter selects devices by id with allow and deny glob patterns in
// path.Match syntax. A denied id is never allowed. With a non-empty
// allowlist an id must also match one of its patterns; with no rules at
// all every id passes.
//
// Ids qualified as "<server>/<ups>" match a pattern when either the full id
// or the bare ups name matches, so "ups*" selects "nas/ups1".
type Filter struct {
	allowlist []string
	denylist  []string
}

// NewFilter returns a Filter. Either list may be nil.
func NewFilter(allowlist, denylist []string) *Filter {
	return &Filter{
		allowlist: allowlist,
		denylist:  denylist,
	}
}

// Empty reports whether f has no rules at all.
func (f *Filter) Empty() bool {
	return f == nil || (len(f.allowlist) == 0 && len(f.denylist) == 0)
}

// Check reports every malformed pattern. Malformed patterns never match,
// so a bad allow pattern hides devices silently.
func (f *Filter) Check() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, list := range []struct {
		name     string
		patterns []string
	}{{"allowlist", f.allowlist}, {"denylist", f.denylist}} {
		for _, p := range list.patterns {
			if _, err := path.Match(p, ""); err != nil {
				errs = append(errs, fmt.Errorf("devices.%s pattern %q: %w", list.name, p, err))
			}
		}
	}
	return errors.Join(errs...)
}

// IsAllowed reports whether the device id is permitted by this filter.
func (f *Filter) IsAllowed(id string) bool {
	if f.Empty() {
		return true
	}
	if matchAny(f.denylist, id) {
		return false
	}
	if len(f.allowlist) == 0 {
		return true
	}
	return matchAny(f.allowlist, id)
}

func matchAny(patterns []string, id string) bool {
	local := id
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		local = id[i+1:]
	}
	for _, pattern := range patterns {
		if matchGlob(pattern, id) || (local != id && matchGlob(pattern, local)) {
			return true
		}
	}
	return false
}

func matchGlob(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}
