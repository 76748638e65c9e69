package anchor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fortiblox/x1-anchor/pkg/codec"
	"github.com/fortiblox/x1-anchor/pkg/types"
)

// Program is a set of instructions bound to one program identity. Register
// every instruction at startup, then Seal; a sealed program is read-only and
// safe for concurrent Dispatch.
type Program struct {
	id      types.Pubkey
	name    string
	version string

	mu           sync.RWMutex
	instructions []*Instruction
	accountTypes []AccountType
	sealed       bool
}

// NewProgram creates an empty program with the given identity.
func NewProgram(id types.Pubkey, name string) *Program {
	return &Program{id: id, name: name, version: "0.1.0"}
}

// ID returns the program identity.
func (p *Program) ID() types.Pubkey { return p.id }

// Name returns the program name.
func (p *Program) Name() string { return p.name }

// Version returns the program version reported in the IDL.
func (p *Program) Version() string { return p.version }

// SetVersion overrides the reported version.
func (p *Program) SetVersion(v string) { p.version = v }

// Register adds an instruction. It fails on a sealed program, on a
// discriminator already taken, and on an invalid schema.
func (p *Program) Register(ix *Instruction) error {
	if err := ix.Schema.Validate(); err != nil {
		return fmt.Errorf("instruction %s: %w", ix.Name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sealed {
		return fmt.Errorf("%w: cannot register %s", ErrSealed, ix.Name)
	}
	for _, existing := range p.instructions {
		if existing.Discriminator == ix.Discriminator {
			return fmt.Errorf("%w: %s and %s share %s", ErrDuplicateInstruction, existing.Name, ix.Name, ix.Discriminator)
		}
	}
	p.instructions = append(p.instructions, ix)

	for _, f := range ix.Schema.Fields {
		if f.Type != nil {
			p.addAccountType(*f.Type)
		}
	}
	return nil
}

// MustRegister is Register for program construction; it panics on error.
func (p *Program) MustRegister(ixs ...*Instruction) *Program {
	for _, ix := range ixs {
		if err := p.Register(ix); err != nil {
			panic(err)
		}
	}
	return p
}

func (p *Program) addAccountType(t AccountType) {
	for _, existing := range p.accountTypes {
		if existing.Name == t.Name {
			return
		}
	}
	p.accountTypes = append(p.accountTypes, t)
}

// Seal forbids further registration.
func (p *Program) Seal() *Program {
	p.mu.Lock()
	p.sealed = true
	p.mu.Unlock()
	return p
}

// Instructions returns the registered instructions in registration order.
func (p *Program) Instructions() []*Instruction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Instruction, len(p.instructions))
	copy(out, p.instructions)
	return out
}

// AccountTypes returns the typed state kinds referenced by the schemas.
func (p *Program) AccountTypes() []AccountType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]AccountType, len(p.accountTypes))
	copy(out, p.accountTypes)
	return out
}

// Lookup finds the instruction for an exact discriminator match.
func (p *Program) Lookup(d codec.Discriminator) (*Instruction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ix := range p.instructions {
		if ix.Discriminator == d {
			return ix, true
		}
	}
	return nil, false
}

// Dispatch runs one call: route the payload to its instruction, decode the
// arguments, bind the accounts and run the handler.
//
// The returned Effects is never nil; on failure its Phase is PhaseAborted and
// it still carries the logs emitted so far. Account state the handler changed
// before failing is restored, so an aborted call leaves accounts untouched.
func (p *Program) Dispatch(programID types.Pubkey, accounts []*AccountInfo, payload []byte) (*Effects, error) {
	fx := &Effects{Phase: PhaseReceived}

	if programID != p.id {
		return p.abort(fx, &Error{
			Kind:    KindProgramMismatch,
			Phase:   PhaseReceived,
			Message: fmt.Sprintf("called as %s, bound to %s", programID, p.id),
		})
	}

	disc, err := codec.DiscriminatorFromBytes(payload)
	if err != nil {
		return p.abort(fx, decodeError(PhaseReceived, "", err))
	}
	ix, ok := p.Lookup(disc)
	if !ok {
		return p.abort(fx, &Error{
			Kind:    KindUnknownInstruction,
			Phase:   PhaseReceived,
			Message: "discriminator " + disc.String(),
		})
	}
	fx.Phase = PhaseDispatched
	fx.Instruction = ix.Name

	args, err := ix.decode(payload)
	if err != nil {
		return p.abort(fx, decodeError(PhaseDispatched, ix.Name, err))
	}

	fx.Phase = PhaseValidating
	bound, err := Bind(p.id, ix.Schema, accounts)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			e.Phase = PhaseValidating
			e.Instruction = ix.Name
		}
		return p.abort(fx, err)
	}
	fx.Phase = PhaseBound

	ctx := &Context{BoundContext: bound, instruction: ix.Name}
	ctx.Msg("Instruction: %s", ix.logName())

	snapshot := make([]*AccountInfo, len(accounts))
	for i, a := range accounts {
		snapshot[i] = a.Clone()
	}

	fx.Phase = PhaseExecuting
	if err := invoke(ix, ctx, args); err != nil {
		restore(accounts, snapshot)
		fx.Logs = ctx.logs
		return p.abort(fx, handlerFailure(ix.Name, err))
	}

	seen := make(map[types.Pubkey]bool, len(accounts))
	for i, a := range accounts {
		if a.stateEqual(snapshot[i]) {
			continue
		}
		if !a.IsWritable {
			restore(accounts, snapshot)
			fx.Logs = ctx.logs
			return p.abort(fx, &Error{
				Kind:        KindNotWritable,
				Phase:       PhaseExecuting,
				Instruction: ix.Name,
				Field:       ix.Schema.Fields[i].Name,
				Message:     "read-only account modified",
			})
		}
		if !seen[a.Key] {
			seen[a.Key] = true
			fx.Modified = append(fx.Modified, a.Key)
		}
	}

	fx.Phase = PhaseCommitted
	fx.Logs = ctx.logs
	fx.ReturnData = ctx.returnData
	return fx, nil
}

func (p *Program) abort(fx *Effects, err error) (*Effects, error) {
	fx.Phase = PhaseAborted
	fx.ReturnData = nil
	fx.Modified = nil
	return fx, err
}

func invoke(ix *Instruction, ctx *Context, args interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return ix.invoke(ctx, args)
}

func restore(accounts, snapshot []*AccountInfo) {
	for i, a := range accounts {
		s := snapshot[i]
		a.Lamports = s.Lamports
		a.Owner = s.Owner
		a.Executable = s.Executable
		a.Data = s.Data
	}
}

func decodeError(phase Phase, instruction string, err error) *Error {
	e := &Error{Kind: KindDecodeError, Phase: phase, Instruction: instruction, Err: err}
	var de *codec.DecodeError
	if errors.As(err, &de) {
		e.Offset = de.Offset
		e.Err = de.Err
	}
	return e
}

// handlerFailure keeps the kind of engine errors a handler passes through
// and classifies everything else as HandlerError.
func handlerFailure(instruction string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		out := *e
		out.Phase = PhaseExecuting
		if out.Instruction == "" {
			out.Instruction = instruction
		}
		return &out
	}
	return &Error{Kind: KindHandlerError, Phase: PhaseExecuting, Instruction: instruction, Err: err}
}
