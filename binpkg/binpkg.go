// Package binpkg implements the Binary Package data model of §3: a
// uniquely-identified, immutable bundle of named commands, each carrying an
// executable Wasm atom.
package binpkg

import (
	"github.com/google/uuid"

	"github.com/wasmproc/core/errors"
)

// Command is one named executable within a package.
type Command struct {
	// Name is the command's invocation name within the package.
	Name string
	// Atom is the command's raw Wasm byte sequence (§GLOSSARY "Atom").
	Atom []byte
	// Entrypoint marks the command selected as the package's default
	// entrypoint. At most one command in a package may set this.
	Entrypoint bool
}

// BinaryPackage is immutable after construction via New.
type BinaryPackage struct {
	id       string
	commands map[string]Command
	order    []string
}

// New constructs an immutable BinaryPackage from a set of commands,
// validating that at most one command is marked Entrypoint. The package is
// assigned a fresh, unique id (§3 "uniquely-identified bundle").
func New(commands []Command) (*BinaryPackage, error) {
	pkg := &BinaryPackage{
		id:       uuid.NewString(),
		commands: make(map[string]Command, len(commands)),
		order:    make([]string, 0, len(commands)),
	}

	entrypoints := 0
	for _, c := range commands {
		if c.Name == "" {
			return nil, errors.InvalidInput(errors.PhaseSpawn, "command name must not be empty")
		}
		if _, dup := pkg.commands[c.Name]; dup {
			return nil, errors.InvalidInput(errors.PhaseSpawn, "duplicate command name "+c.Name)
		}
		if c.Entrypoint {
			entrypoints++
		}
		pkg.commands[c.Name] = c
		pkg.order = append(pkg.order, c.Name)
	}
	if entrypoints > 1 {
		return nil, errors.InvalidInput(errors.PhaseSpawn, "at most one command may be the entrypoint")
	}

	return pkg, nil
}

// ID returns the package's unique identifier.
func (p *BinaryPackage) ID() string {
	return p.id
}

// Command looks up a named command.
func (p *BinaryPackage) Command(name string) (Command, bool) {
	c, ok := p.commands[name]
	return c, ok
}

// Entrypoint returns the package's entrypoint command, if one was marked.
// §7 SpawnError.MissingEntrypoint is returned by the caller when ok is false
// and no explicit command name was requested.
func (p *BinaryPackage) Entrypoint() (Command, bool) {
	for _, name := range p.order {
		if c := p.commands[name]; c.Entrypoint {
			return c, true
		}
	}
	return Command{}, false
}

// Commands returns every command name in registration order.
func (p *BinaryPackage) Commands() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}
