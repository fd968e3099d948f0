// Package nut implements a client for the Network UPS Tools (upsd) text
// protocol and adapts it to the ups.DeviceSource interface.
package nut

import (
	"context"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is the upsd TCP port.
const DefaultPort = 3493

const defaultTimeout = 10 * time.Second

// Config holds connection details for one upsd server.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// Timeout bounds a whole session when ctx carries no deadline.
	Timeout time.Duration
}

// UPS is one entry of LIST UPS.
type UPS struct {
	Name        string
	Description string
}

// Variable is one entry of LIST VAR. Type is filled from GET TYPE when
// requested and is empty otherwise.
type Variable struct {
	Name  string
	Value string
	Type  string
}

// ProtocolError is an ERR response from upsd.
type ProtocolError struct {
	Command string
	Code    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("nut: %s: ERR %s", e.Command, e.Code)
}

// Client talks to a single upsd server. Each call opens its own connection,
// so a Client is safe for concurrent use.
type Client struct {
	addr     string
	username string
	password string
	timeout  time.Duration
	dialer   net.Dialer
}

// NewClient constructs a Client. It returns an error if cfg.Host is empty.
// A zero port means DefaultPort and a non-positive timeout means 10s.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("nut: host is required")
	}
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		username: cfg.Username,
		password: cfg.Password,
		timeout:  timeout,
	}, nil
}

// Addr returns the server address.
func (c *Client) Addr() string { return c.addr }

// ListUPS returns the devices the server knows about.
func (c *Client) ListUPS(ctx context.Context) ([]UPS, error) {
	var out []UPS
	err := c.session(ctx, func(s *session) error {
		lines, err := s.list("UPS")
		if err != nil {
			return err
		}
		out = make([]UPS, 0, len(lines))
		for _, f := range lines {
			// UPS <name> "<description>"
			if len(f) < 2 || f[0] != "UPS" {
				return fmt.Errorf("nut: LIST UPS: unexpected line %q", strings.Join(f, " "))
			}
			u := UPS{Name: f[1]}
			if len(f) > 2 {
				u.Description = f[2]
			}
			out = append(out, u)
		}
		return nil
	})
	return out, err
}

// Variables returns every variable of the named UPS. With withTypes set, a
// GET TYPE is issued per variable on the same connection.
func (c *Client) Variables(ctx context.Context, ups string, withTypes bool) ([]Variable, error) {
	var out []Variable
	err := c.session(ctx, func(s *session) error {
		lines, err := s.list("VAR " + ups)
		if err != nil {
			return err
		}
		out = make([]Variable, 0, len(lines))
		for _, f := range lines {
			// VAR <ups> <name> "<value>"
			if len(f) < 4 || f[0] != "VAR" {
				return fmt.Errorf("nut: LIST VAR: unexpected line %q", strings.Join(f, " "))
			}
			out = append(out, Variable{Name: f[2], Value: f[3]})
		}
		if !withTypes {
			return nil
		}
		for i := range out {
			typ, err := s.getType(ups, out[i].Name)
			if err != nil {
				return err
			}
			out[i].Type = typ
		}
		return nil
	})
	return out, err
}

// GetType returns the declared type of one variable, e.g. "RW STRING:30".
func (c *Client) GetType(ctx context.Context, ups, name string) (string, error) {
	var typ string
	err := c.session(ctx, func(s *session) error {
		var err error
		typ, err = s.getType(ups, name)
		return err
	})
	return typ, err
}

// session dials, authenticates, runs fn and logs out.
func (c *Client) session(ctx context.Context, fn func(*session) error) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("nut: dial %s: %w", c.addr, err)
	}
	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)

	// Unblock reads when ctx is cancelled before the deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	s := &session{conn: textproto.NewConn(conn)}
	defer func() { _ = s.conn.Close() }()

	if c.username != "" {
		if err := s.expectOK("USERNAME " + quote(c.username)); err != nil {
			return err
		}
		if err := s.expectOK("PASSWORD " + quote(c.password)); err != nil {
			return err
		}
	}

	if err := fn(s); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ctxErr, err)
		}
		return err
	}
	_ = s.expectOK("LOGOUT")
	return nil
}

type session struct {
	conn *textproto.Conn
}

// cmd sends one command line and returns the first response line split into
// fields. ERR responses become *ProtocolError.
func (s *session) cmd(line string) ([]string, error) {
	if err := s.conn.PrintfLine("%s", line); err != nil {
		return nil, fmt.Errorf("nut: write %s: %w", verb(line), err)
	}
	return s.read(line)
}

func (s *session) read(command string) ([]string, error) {
	resp, err := s.conn.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("nut: read %s: %w", verb(command), err)
	}
	f, err := splitFields(resp)
	if err != nil {
		return nil, fmt.Errorf("nut: %s: %w", verb(command), err)
	}
	if len(f) > 0 && f[0] == "ERR" {
		code := "UNKNOWN"
		if len(f) > 1 {
			code = f[1]
		}
		return nil, &ProtocolError{Command: verb(command), Code: code}
	}
	return f, nil
}

func (s *session) expectOK(line string) error {
	f, err := s.cmd(line)
	if err != nil {
		return err
	}
	if len(f) == 0 || f[0] != "OK" {
		return fmt.Errorf("nut: %s: unexpected response %q", verb(line), strings.Join(f, " "))
	}
	return nil
}

// list runs LIST <what> and returns the body lines between BEGIN and END.
func (s *session) list(what string) ([][]string, error) {
	command := "LIST " + what
	f, err := s.cmd(command)
	if err != nil {
		return nil, err
	}
	if strings.Join(f, " ") != "BEGIN "+command {
		return nil, fmt.Errorf("nut: %s: unexpected response %q", command, strings.Join(f, " "))
	}
	var lines [][]string
	for {
		f, err := s.read(command)
		if err != nil {
			return nil, err
		}
		if strings.Join(f, " ") == "END "+command {
			return lines, nil
		}
		lines = append(lines, f)
	}
}

func (s *session) getType(ups, name string) (string, error) {
	f, err := s.cmd("GET TYPE " + ups + " " + name)
	if err != nil {
		return "", err
	}
	// TYPE <ups> <name> <type>...
	if len(f) < 4 || f[0] != "TYPE" {
		return "", fmt.Errorf("nut: GET TYPE: unexpected response %q", strings.Join(f, " "))
	}
	return strings.Join(f[3:], " "), nil
}

// verb returns the command word(s) of line without credentials.
func verb(line string) string {
	f := strings.Fields(line)
	switch {
	case len(f) == 0:
		return ""
	case f[0] == "LIST" || f[0] == "GET":
		if len(f) > 1 {
			return f[0] + " " + f[1]
		}
	}
	return f[0]
}
