// Package target parses and resolves the machine a run connects to.
package target

import (
	"net"
	"strconv"
	"strings"

	"github.com/seeed-sh/seeed/core/errors"
	"github.com/seeed-sh/seeed/core/value"
)

// DefaultPort is used when a target omits ":port".
const DefaultPort = 22

// VariableName is the script binding consulted when no CLI target is given.
const VariableName = "target"

// Spec identifies one SSH endpoint.
type Spec struct {
	User string
	Host string
	Port int
}

// String renders user@host:port.
func (s Spec) String() string {
	return s.User + "@" + s.Addr()
}

// Addr renders host:port for dialing, bracketing IPv6 literals.
func (s Spec) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Parse reads "user@host[:port]". IPv6 hosts must be bracketed when a port
// is given ("root@[::1]:2222").
func Parse(text string) (Spec, error) {
	raw := strings.TrimSpace(text)

	at := strings.LastIndex(raw, "@")
	if at <= 0 || at == len(raw)-1 {
		return Spec{}, errors.NewTargetResolutionError(0, "invalid target %q: expected user@host[:port]", text)
	}
	user, rest := raw[:at], raw[at+1:]
	if strings.ContainsAny(user, " \t@") {
		return Spec{}, errors.NewTargetResolutionError(0, "invalid target %q: bad user %q", text, user)
	}

	host, port := rest, DefaultPort
	if h, p, err := net.SplitHostPort(rest); err == nil {
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n < 1 || n > 65535 {
			return Spec{}, errors.NewTargetResolutionError(0, "invalid target %q: port %q is not in 1-65535", text, p)
		}
		host, port = h, n
	} else if strings.HasPrefix(rest, "[") && strings.HasSuffix(rest, "]") {
		host = rest[1 : len(rest)-1]
	} else if strings.Count(rest, ":") == 1 {
		// "host:" or "host:abc"
		return Spec{}, errors.NewTargetResolutionError(0, "invalid target %q: %v", text, err)
	}

	if host == "" || strings.ContainsAny(host, " \t/") {
		return Spec{}, errors.NewTargetResolutionError(0, "invalid target %q: bad host %q", text, host)
	}

	return Spec{User: user, Host: host, Port: port}, nil
}

// Resolve picks the target for a run. A CLI target always wins; otherwise the
// script's "target" binding is parsed. present reports whether that binding
// exists. line is the statement that needed a target.
func Resolve(cli *Spec, script value.Value, present bool, line int) (Spec, error) {
	if cli != nil {
		return *cli, nil
	}

	if !present {
		return Spec{}, errors.NewTargetResolutionError(line,
			"no target: pass --target user@host[:port] or declare 'let %s = \"user@host\"'", VariableName)
	}

	s, ok := script.(value.String)
	if !ok {
		return Spec{}, errors.NewTargetResolutionError(line,
			"variable %q must be a string, got %s", VariableName, script.Kind())
	}

	spec, err := Parse(s.Text())
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			e.Line = line
		}
		return Spec{}, err
	}
	return spec, nil
}
