// Package scope implements the variable environment of a run.
//
// Frames live in an arena and are addressed by ID. A frame points at its
// parent by index, so lookups walk upward without holding pointers into the
// interpreter. Frames opened for a loop iteration are released in LIFO order
// once the iteration body finishes; nothing declared inside survives.
package scope

import (
	"sort"

	"github.com/seeed-sh/seeed/core/errors"
	"github.com/seeed-sh/seeed/core/invariant"
	"github.com/seeed-sh/seeed/core/value"
)

// ID addresses a frame in the arena.
type ID int

// NoParent marks the root frame.
const NoParent ID = -1

// Root is the ID of the frame every Arena starts with.
const Root ID = 0

type frame struct {
	vars   map[string]value.Value
	parent ID
}

// Arena owns every frame of a run.
type Arena struct {
	frames []frame
}

// New creates an arena holding only the root frame.
func New() *Arena {
	return &Arena{
		frames: []frame{{vars: make(map[string]value.Value), parent: NoParent}},
	}
}

// Declare binds name in frame id, overwriting a binding in that same frame.
// Outer frames are never touched; a binding there is shadowed.
func (a *Arena) Declare(id ID, name string, v value.Value) {
	a.mustBeLive(id)
	invariant.Precondition(name != "", "variable name must not be empty")
	invariant.NotNil(v, "value")

	a.frames[id].vars[name] = v
}

// Lookup walks from frame id outward and returns the first binding of name.
// line is reported in the UndefinedVariable error when the chain is exhausted.
func (a *Arena) Lookup(id ID, name string, line int) (value.Value, error) {
	a.mustBeLive(id)

	for cur := id; cur != NoParent; cur = a.frames[cur].parent {
		if v, ok := a.frames[cur].vars[name]; ok {
			return v, nil
		}
	}

	err := errors.NewUndefinedVariable(name, line)
	if hint := errors.DidYouMean(name, a.Visible(id)); hint != "" {
		err.WithHint(hint)
	}
	return nil, err
}

// Child opens a new empty frame whose parent is parent.
func (a *Arena) Child(parent ID) ID {
	a.mustBeLive(parent)

	a.frames = append(a.frames, frame{
		vars:   make(map[string]value.Value),
		parent: parent,
	})
	return ID(len(a.frames) - 1)
}

// Release discards frame id. Only the most recently opened frame may be
// released, and the root frame never is.
func (a *Arena) Release(id ID) {
	invariant.Precondition(id != Root, "root scope cannot be released")
	invariant.Invariant(int(id) == len(a.frames)-1,
		"scope %d released out of order (innermost is %d)", id, len(a.frames)-1)

	a.frames[id].vars = nil
	a.frames = a.frames[:id]
}

// Visible lists every name reachable from frame id, sorted and deduplicated.
func (a *Arena) Visible(id ID) []string {
	a.mustBeLive(id)

	seen := make(map[string]bool)
	var names []string
	for cur := id; cur != NoParent; cur = a.frames[cur].parent {
		for name := range a.frames[cur].vars {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Depth reports how many frames are live, root included.
func (a *Arena) Depth() int {
	return len(a.frames)
}

func (a *Arena) mustBeLive(id ID) {
	invariant.Precondition(id >= Root && int(id) < len(a.frames), "scope %d is not live", id)
}
