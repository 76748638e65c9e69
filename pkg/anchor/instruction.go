package anchor

import (
	"reflect"
	"strings"

	"github.com/fortiblox/x1-anchor/pkg/codec"
)

// HandlerFunc runs an argument-less instruction.
type HandlerFunc func(ctx *Context) error

// Instruction describes one entry point of a program.
type Instruction struct {
	Name          string
	Discriminator codec.Discriminator
	Schema        Schema

	// argType is nil for instructions without arguments.
	argType reflect.Type
	decode  func(payload []byte) (interface{}, error)
	invoke  func(ctx *Context, args interface{}) error
}

// Handle declares an instruction whose arguments decode into A. The payload
// after the discriminator must hold exactly one encoded A.
func Handle[A any](name string, schema Schema, fn func(ctx *Context, args *A) error) *Instruction {
	return &Instruction{
		Name:          name,
		Discriminator: codec.InstructionDiscriminator(name),
		Schema:        schema,
		argType:       reflect.TypeOf((*A)(nil)).Elem(),
		decode: func(payload []byte) (interface{}, error) {
			args := new(A)
			if err := codec.DecodeAt(payload[codec.DiscriminatorSize:], codec.DiscriminatorSize, args); err != nil {
				return nil, err
			}
			return args, nil
		},
		invoke: func(ctx *Context, args interface{}) error {
			return fn(ctx, args.(*A))
		},
	}
}

// Handle0 declares an instruction without arguments. Any byte after the
// discriminator is a decode error.
func Handle0(name string, schema Schema, fn HandlerFunc) *Instruction {
	return &Instruction{
		Name:          name,
		Discriminator: codec.InstructionDiscriminator(name),
		Schema:        schema,
		decode: func(payload []byte) (interface{}, error) {
			if len(payload) > codec.DiscriminatorSize {
				return nil, &codec.DecodeError{
					Offset: codec.DiscriminatorSize,
					Err:    codec.ErrTrailingBytes,
				}
			}
			return nil, nil
		},
		invoke: func(ctx *Context, _ interface{}) error {
			return fn(ctx)
		},
	}
}

// ArgType returns the argument type, or nil when the instruction takes none.
func (ix *Instruction) ArgType() reflect.Type {
	return ix.argType
}

// logName is the instruction name as the program log prints it:
// make_deposit -> MakeDeposit.
func (ix *Instruction) logName() string {
	parts := strings.Split(ix.Name, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
