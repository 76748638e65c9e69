package runtime

import (
	"bytes"
	"sort"
	"sync"

	"github.com/fortiblox/x1-anchor/pkg/anchor"
	"github.com/fortiblox/x1-anchor/pkg/types"
)

// Program is anything the runtime can route an instruction to.
// *anchor.Program satisfies it.
type Program interface {
	ID() types.Pubkey
	Name() string
	Dispatch(programID types.Pubkey, accounts []*anchor.AccountInfo, payload []byte) (*anchor.Effects, error)
}

var _ Program = (*anchor.Program)(nil)

// ProgramRegistry maps program identities to programs.
type ProgramRegistry struct {
	mu       sync.RWMutex
	programs map[types.Pubkey]Program
}

// NewProgramRegistry creates a registry holding programs.
func NewProgramRegistry(programs ...Program) *ProgramRegistry {
	r := &ProgramRegistry{programs: make(map[types.Pubkey]Program)}
	for _, p := range programs {
		r.Register(p)
	}
	return r
}

// Register adds p under its own identity, replacing any earlier program with
// the same identity.
func (r *ProgramRegistry) Register(p Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[p.ID()] = p
}

// Get returns the program registered for id.
func (r *ProgramRegistry) Get(id types.Pubkey) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[id]
	return p, ok
}

// Has checks if a program is registered.
func (r *ProgramRegistry) Has(id types.Pubkey) bool {
	_, ok := r.Get(id)
	return ok
}

// Unregister removes a program.
func (r *ProgramRegistry) Unregister(id types.Pubkey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.programs, id)
}

// List returns the registered programs sorted by identity.
func (r *ProgramRegistry) List() []Program {
	r.mu.RLock()
	out := make([]Program, 0, len(r.programs))
	for _, p := range r.programs {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ID(), out[j].ID()
		return bytes.Compare(a[:], b[:]) < 0
	})
	return out
}

// Count returns the number of registered programs.
func (r *ProgramRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.programs)
}
