// Package builtins implements the closed set of functions a script can call.
//
// Built-ins produce no value; they exist for their side effects on the local
// console, the local filesystem or the target.
package builtins

import (
	"fmt"
	"sort"
	"strings"

	"github.com/seeed-sh/seeed/core/ast"
	"github.com/seeed-sh/seeed/core/errors"
)

// Builtin identifies one built-in function.
type Builtin int

const (
	Echo Builtin = iota
	Upload
	Download
	Exec
)

// Contract describes a built-in's calling convention.
type Contract struct {
	Name    string
	MinArgs int
	MaxArgs int // -1 for variadic
	Remote  bool
	Usage   string
}

var contracts = map[Builtin]Contract{
	Echo:     {Name: "echo", MinArgs: 0, MaxArgs: -1, Usage: `echo("text", $var, ...)`},
	Upload:   {Name: "upload", MinArgs: 2, MaxArgs: 2, Remote: true, Usage: `upload($content | "local/path", "/remote/path")`},
	Download: {Name: "download", MinArgs: 2, MaxArgs: 2, Remote: true, Usage: `download("/remote/path", "local/path")`},
	Exec:     {Name: "exec", MinArgs: 1, MaxArgs: 1, Usage: `exec("local command")`},
}

var byName = func() map[string]Builtin {
	m := make(map[string]Builtin, len(contracts))
	for b, c := range contracts {
		m[c.Name] = b
	}
	return m
}()

// Lookup finds a built-in by name.
func Lookup(name string) (Builtin, bool) {
	b, ok := byName[name]
	return b, ok
}

// Names lists every built-in name, sorted.
func Names() []string {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Contract returns the built-in's calling convention.
func (b Builtin) Contract() Contract {
	return contracts[b]
}

func (b Builtin) String() string {
	return contracts[b].Name
}

// Accepts reports whether n arguments satisfy the arity.
func (c Contract) Accepts(n int) bool {
	return n >= c.MinArgs && (c.MaxArgs < 0 || n <= c.MaxArgs)
}

// Arity renders the accepted argument count for diagnostics.
func (c Contract) Arity() string {
	switch {
	case c.MaxArgs < 0:
		return fmt.Sprintf("at least %d", c.MinArgs)
	case c.MinArgs == c.MaxArgs:
		return fmt.Sprintf("%d", c.MinArgs)
	default:
		return fmt.Sprintf("%d to %d", c.MinArgs, c.MaxArgs)
	}
}

// Check resolves call to a built-in and verifies its arity.
func Check(call *ast.FunctionCall) (Builtin, error) {
	b, ok := Lookup(call.Name)
	if !ok {
		err := errors.NewUnknownBuiltin(call.Name, call.Pos.Line).At(call.Pos.Column)
		if hint := errors.DidYouMean(call.Name, Names()); hint != "" {
			err.WithHint(hint)
		} else {
			err.WithHint("available functions: " + strings.Join(Names(), ", "))
		}
		return 0, err
	}

	c := b.Contract()
	if !c.Accepts(len(call.Args)) {
		return 0, errors.NewArityError(c.Name, call.Pos.Line, c.Arity(), len(call.Args)).
			At(call.Pos.Column).
			WithHint("usage: " + c.Usage)
	}
	return b, nil
}
