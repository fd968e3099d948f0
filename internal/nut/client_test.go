package nut

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jamesprial/upswatch/internal/ups"
)

// ---------------------------------------------------------------------------
// Fake upsd
// ---------------------------------------------------------------------------

// fakeUPSD answers the subset of the upsd protocol the client speaks. Each
// connection is served independently; handled commands are recorded.
type fakeUPSD struct {
	t        *testing.T
	ln       net.Listener
	devices  map[string][][2]string // ups -> ordered (name, value)
	descs    map[string]string
	types    map[string]string // "ups var" -> type words
	user     string
	password string
	stall    bool

	mu       sync.Mutex
	commands []string
}

func newFakeUPSD(t *testing.T, opts ...func(*fakeUPSD)) *fakeUPSD {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeUPSD{
		t:  t,
		ln: ln,
		devices: map[string][][2]string{
			"ups1": {
				{"battery.charge", "100"},
				{"device.mfr", "American Power Conversion"},
				{"ups.status", "OL"},
				{"ups.load", "12"},
			},
			"eaton": {
				{"ups.status", "OB DISCHRG"},
				{"battery.charge", "48"},
			},
		},
		descs: map[string]string{"ups1": `Back-UPS "XS" 1500`, "eaton": "Eaton 5E"},
		types: map[string]string{
			"ups1 battery.charge": "NUMBER",
			"ups1 device.mfr":     "STRING:32",
			"ups1 ups.status":     "STRING:64",
			"ups1 ups.load":       "NUMBER",
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	go f.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return f
}

func (f *fakeUPSD) client(t *testing.T, mutate func(*Config)) *Client {
	t.Helper()
	host, port, _ := net.SplitHostPort(f.ln.Addr().String())
	p, _ := strconv.Atoi(port)
	cfg := Config{Host: host, Port: p, Timeout: 2 * time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func (f *fakeUPSD) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *fakeUPSD) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeUPSD) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	send := func(lines ...string) {
		for _, l := range lines {
			_, _ = w.WriteString(l + "\n")
		}
		_ = w.Flush()
	}
	var gotUser, gotPass string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		f.mu.Lock()
		f.commands = append(f.commands, line)
		f.mu.Unlock()

		if f.stall {
			// Never answer; the client must give up on its own.
			continue
		}

		fields, _ := splitFields(line)
		if len(fields) == 0 {
			send("ERR UNKNOWN-COMMAND")
			continue
		}
		authed := f.user == "" || (gotUser == f.user && gotPass == f.password)
		switch fields[0] {
		case "USERNAME":
			gotUser = fields[1]
			send("OK")
		case "PASSWORD":
			gotPass = fields[1]
			send("OK")
		case "LOGOUT":
			send("OK Goodbye")
			return
		case "LIST":
			if !authed {
				send("ERR ACCESS-DENIED")
				continue
			}
			f.list(fields, send)
		case "GET":
			if len(fields) < 4 || fields[1] != "TYPE" {
				send("ERR INVALID-ARGUMENT")
				continue
			}
			typ, ok := f.types[fields[2]+" "+fields[3]]
			if !ok {
				send("ERR VAR-NOT-SUPPORTED")
				continue
			}
			send("TYPE " + fields[2] + " " + fields[3] + " " + typ)
		default:
			send("ERR UNKNOWN-COMMAND")
		}
	}
}

func (f *fakeUPSD) list(fields []string, send func(...string)) {
	switch {
	case len(fields) == 2 && fields[1] == "UPS":
		lines := []string{"BEGIN LIST UPS"}
		for _, name := range []string{"eaton", "ups1"} {
			lines = append(lines, "UPS "+name+" "+quote(f.descs[name]))
		}
		send(append(lines, "END LIST UPS")...)
	case len(fields) == 3 && fields[1] == "VAR":
		vars, ok := f.devices[fields[2]]
		if !ok {
			send("ERR UNKNOWN-UPS")
			return
		}
		lines := []string{"BEGIN LIST VAR " + fields[2]}
		for _, kv := range vars {
			lines = append(lines, "VAR "+fields[2]+" "+kv[0]+" "+quote(kv[1]))
		}
		send(append(lines, "END LIST VAR "+fields[2])...)
	default:
		send("ERR INVALID-ARGUMENT")
	}
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

func Test_NewClient_Cases(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error for empty host")
	}
	c, err := NewClient(Config{Host: "nas"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.Addr() != "nas:3493" {
		t.Errorf("Addr = %q, want nas:3493", c.Addr())
	}
	if c.timeout != defaultTimeout {
		t.Errorf("timeout = %v, want %v", c.timeout, defaultTimeout)
	}
}

func Test_Client_ListUPS(t *testing.T) {
	f := newFakeUPSD(t)
	got, err := f.client(t, nil).ListUPS(context.Background())
	if err != nil {
		t.Fatalf("ListUPS: %v", err)
	}
	want := []UPS{{Name: "eaton", Description: "Eaton 5E"}, {Name: "ups1", Description: `Back-UPS "XS" 1500`}}
	if len(got) != len(want) {
		t.Fatalf("ListUPS = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	cmds := f.seen()
	if len(cmds) == 0 || cmds[len(cmds)-1] != "LOGOUT" {
		t.Errorf("commands = %q, want a trailing LOGOUT", cmds)
	}
}

func Test_Client_Variables_Cases(t *testing.T) {
	tests := []struct {
		name      string
		ups       string
		withTypes bool
		mutate    func(*Config)
		server    func(*fakeUPSD)
		wantErr   string
		validate  func(t *testing.T, vars []Variable, cmds []string)
	}{
		{
			name: "values in server order",
			ups:  "ups1",
			validate: func(t *testing.T, vars []Variable, cmds []string) {
				if len(vars) != 4 || vars[0].Name != "battery.charge" || vars[1].Value != "American Power Conversion" {
					t.Errorf("vars = %+v", vars)
				}
				for _, v := range vars {
					if v.Type != "" {
						t.Errorf("%s has type %q without describe", v.Name, v.Type)
					}
				}
			},
		},
		{
			name:      "types requested",
			ups:       "ups1",
			withTypes: true,
			validate: func(t *testing.T, vars []Variable, cmds []string) {
				if vars[0].Type != "NUMBER" || vars[1].Type != "STRING:32" {
					t.Errorf("types = %q, %q", vars[0].Type, vars[1].Type)
				}
			},
		},
		{
			name:    "unknown ups",
			ups:     "ghost",
			wantErr: "ERR UNKNOWN-UPS",
		},
		{
			name:      "missing type fails the fetch",
			ups:       "eaton",
			withTypes: true,
			wantErr:   "ERR VAR-NOT-SUPPORTED",
		},
		{
			name:   "credentials sent before listing",
			ups:    "ups1",
			mutate: func(c *Config) { c.Username, c.Password = "mon", "pw" },
			server: func(f *fakeUPSD) { f.user, f.password = `mon`, `pw` },
			validate: func(t *testing.T, vars []Variable, cmds []string) {
				if len(cmds) < 3 || cmds[0] != `USERNAME "mon"` || cmds[1] != `PASSWORD "pw"` {
					t.Errorf("commands = %q", cmds)
				}
			},
		},
		{
			name:    "wrong password",
			ups:     "ups1",
			mutate:  func(c *Config) { c.Username, c.Password = "mon", "nope" },
			server:  func(f *fakeUPSD) { f.user, f.password = "mon", "pw" },
			wantErr: "ERR ACCESS-DENIED",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []func(*fakeUPSD)
			if tt.server != nil {
				opts = append(opts, tt.server)
			}
			f := newFakeUPSD(t, opts...)
			vars, err := f.client(t, tt.mutate).Variables(context.Background(), tt.ups, tt.withTypes)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want it to contain %q", err, tt.wantErr)
				}
				var pe *ProtocolError
				if !errors.As(err, &pe) {
					t.Errorf("err = %T, want *ProtocolError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Variables: %v", err)
			}
			tt.validate(t, vars, f.seen())
		})
	}
}

func Test_Client_GetType(t *testing.T) {
	f := newFakeUPSD(t)
	typ, err := f.client(t, nil).GetType(context.Background(), "ups1", "ups.status")
	if err != nil {
		t.Fatalf("GetType: %v", err)
	}
	if typ != "STRING:64" {
		t.Errorf("GetType = %q, want STRING:64", typ)
	}
}

func Test_Client_ContextCancelUnblocks(t *testing.T) {
	f := newFakeUPSD(t, func(f *fakeUPSD) { f.stall = true })
	c := f.client(t, func(c *Config) { c.Timeout = time.Minute })

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := c.ListUPS(ctx)
	if err == nil {
		t.Fatal("expected error after cancel")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancel took %v", elapsed)
	}
}

func Test_Client_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	_ = ln.Close()

	c, _ := NewClient(Config{Host: "127.0.0.1", Port: addr.Port, Timeout: time.Second})
	if _, err := c.ListUPS(context.Background()); err == nil || !strings.Contains(err.Error(), "dial") {
		t.Errorf("err = %v, want a dial error", err)
	}
}

// ---------------------------------------------------------------------------
// Source
// ---------------------------------------------------------------------------

func Test_Source_FeedsSnapshot(t *testing.T) {
	f := newFakeUPSD(t)
	src := NewSource(f.client(t, nil), true)

	raw, err := ups.FetchAll(context.Background(), src, time.Second, 2)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	snap := ups.Build(time.Now(), raw, nil)

	if got := snap.IDs(); len(got) != 2 || got[0] != "eaton" || got[1] != "ups1" {
		t.Fatalf("IDs = %v", got)
	}

	// eaton lacks declared types upstream, so its fetch fails as a unit.
	eaton, _ := snap.Device("eaton")
	if eaton.Reachable() {
		t.Errorf("eaton should have empty vars after a failed type lookup")
	}
	if eaton.Description != "Eaton 5E" {
		t.Errorf("eaton description = %q", eaton.Description)
	}

	u, _ := snap.Device("ups1")
	charge, ok := u.Var("battery.charge")
	if !ok || charge.Type() != ups.TypeNumber {
		t.Fatalf("battery.charge = %+v", charge)
	}
	if n, _ := charge.Number(); n != 100 {
		t.Errorf("battery.charge = %v, want 100", n)
	}
	if st := u.Status(); st.Category != ups.StatusNormal || st.Label != "Online" {
		t.Errorf("status = %+v", st)
	}
}
