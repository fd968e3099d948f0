package nut

import (
	"context"

	"github.com/jamesprial/upswatch/internal/ups"
)

// Compile-time interface check.
var _ ups.DeviceSource = (*Source)(nil)

// Source adapts a Client to ups.DeviceSource. Device ids are upsd UPS names.
type Source struct {
	client        *Client
	describeTypes bool
}

// NewSource returns a Source. With describeTypes set every variable fetch
// also asks upsd for the declared type of each variable.
func NewSource(client *Client, describeTypes bool) *Source {
	if client == nil {
		panic("nut client must not be nil")
	}
	return &Source{client: client, describeTypes: describeTypes}
}

func (s *Source) ListDevices(ctx context.Context) ([]ups.DeviceInfo, error) {
	list, err := s.client.ListUPS(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]ups.DeviceInfo, len(list))
	for i, u := range list {
		infos[i] = ups.DeviceInfo{ID: u.Name, Name: u.Name, Description: u.Description}
	}
	return infos, nil
}

func (s *Source) Variables(ctx context.Context, id string) ([]ups.RawVariable, error) {
	vars, err := s.client.Variables(ctx, id, s.describeTypes)
	if err != nil {
		return nil, err
	}
	out := make([]ups.RawVariable, len(vars))
	for i, v := range vars {
		out[i] = ups.RawVariable{Name: v.Name, Value: v.Value, Type: v.Type}
	}
	return out, nil
}
