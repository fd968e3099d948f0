package ups

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jamesprial/upswatch/internal/graphql"
)

// Compile-time interface check.
var _ DeviceSource = (*GraphQLSource)(nil)

// graphqlReuseWindow is how long a ListDevices response serves the
// per-device Variables calls that follow it in the same poll.
const graphqlReuseWindow = 2 * time.Second

// GraphQLSource implements DeviceSource by querying the Unraid GraphQL API.
// Its structured response is flattened into NUT-style variables so both
// sources feed the same engine.
//
// One query returns every device, so Variables answers from the response
// of the preceding ListDevices while it is fresh. A poll costs one request.
type GraphQLSource struct {
	client graphql.Client
	now    func() time.Time

	mu       sync.Mutex
	cached   []gqlDevice
	cachedAt time.Time
}

// NewGraphQLSource returns a GraphQLSource that uses the provided GraphQL
// client to fetch UPS device data.
func NewGraphQLSource(client graphql.Client) *GraphQLSource {
	if client == nil {
		panic("graphql client must not be nil")
	}
	return &GraphQLSource{client: client, now: time.Now}
}

func (s *GraphQLSource) remember(devices []gqlDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached, s.cachedAt = devices, s.now()
}

func (s *GraphQLSource) recent() ([]gqlDevice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil || s.now().Sub(s.cachedAt) > graphqlReuseWindow {
		return nil, false
	}
	return s.cached, true
}

// gqlDevice mirrors one entry of the GraphQL "ups" field.
type gqlDevice struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Model   string `json:"model"`
	Status  string `json:"status"`
	Battery *struct {
		Charge  *float64 `json:"charge"`
		Runtime *int     `json:"runtime"` // seconds
	} `json:"battery"`
	Power *struct {
		InputVoltage  *float64 `json:"inputVoltage"`
		OutputVoltage *float64 `json:"outputVoltage"`
		Load          *float64 `json:"load"`
	} `json:"power"`
}

// upsResponse is the "data" object of the UPS query.
type upsResponse struct {
	UPS []gqlDevice `json:"ups"`
}

const upsQuery = `query { ups { id name model status battery { charge runtime } power { inputVoltage outputVoltage load } } }`

func (s *GraphQLSource) query(ctx context.Context) ([]gqlDevice, error) {
	data, err := s.client.Execute(ctx, upsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("get ups devices: %w", err)
	}
	var resp upsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("get ups devices: parse response: %w", err)
	}
	return resp.UPS, nil
}

// ListDevices returns every UPS the API reports. An empty (non-nil) slice
// is returned when no devices are configured.
func (s *GraphQLSource) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	devices, err := s.query(ctx)
	if err != nil {
		return nil, err
	}
	s.remember(devices)
	infos := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		infos = append(infos, DeviceInfo{ID: d.ID, Name: d.Name, Description: d.Model})
	}
	return infos, nil
}

// Variables returns the flattened variables of one device. Without a fresh
// listing, or when the listing lacks id, the API is queried again.
func (s *GraphQLSource) Variables(ctx context.Context, id string) ([]RawVariable, error) {
	if devices, ok := s.recent(); ok {
		if d, found := findDevice(devices, id); found {
			return flatten(d), nil
		}
	}
	devices, err := s.query(ctx)
	if err != nil {
		return nil, err
	}
	s.remember(devices)
	if d, found := findDevice(devices, id); found {
		return flatten(d), nil
	}
	return nil, fmt.Errorf("get ups variables: %w: %s", ErrDeviceNotFound, id)
}

func findDevice(devices []gqlDevice, id string) (gqlDevice, bool) {
	for _, d := range devices {
		if d.ID == id {
			return d, true
		}
	}
	return gqlDevice{}, false
}

// flatten maps the structured device onto NUT variable names. Nil fields
// are omitted.
func flatten(d gqlDevice) []RawVariable {
	vars := []RawVariable{
		{Name: "ups.model", Value: d.Model, Type: "STRING"},
		{Name: VarStatus, Value: nutStatus(d.Status), Type: "STRING"},
	}
	num := func(name string, v *float64) {
		if v != nil {
			vars = append(vars, RawVariable{Name: name, Value: *v, Type: "NUMBER"})
		}
	}
	if d.Battery != nil {
		num(VarBatteryCharge, d.Battery.Charge)
		if d.Battery.Runtime != nil {
			vars = append(vars, RawVariable{Name: "battery.runtime", Value: strconv.Itoa(*d.Battery.Runtime), Type: "NUMBER"})
		}
	}
	if d.Power != nil {
		num("input.voltage", d.Power.InputVoltage)
		num("output.voltage", d.Power.OutputVoltage)
		num(VarLoad, d.Power.Load)
	}
	return vars
}

// unraidStatuses translates the API's descriptive statuses to NUT codes.
var unraidStatuses = map[string]string{
	"online":             "OL",
	"online charging":    "OL CHRG",
	"charging":           "OL CHRG",
	"on battery":         "OB",
	"onbattery":          "OB",
	"low battery":        "LB",
	"lowbattery":         "LB",
	"offline":            "OFF",
	"unreachable":        DeviceUnreachable,
	"device unreachable": DeviceUnreachable,
}

// nutStatus returns the NUT code for status, or status unchanged when it is
// already a code or unknown.
func nutStatus(status string) string {
	if code, ok := unraidStatuses[strings.ToLower(strings.TrimSpace(status))]; ok {
		return code
	}
	return status
}
