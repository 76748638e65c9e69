// Package greeter is the reference program: a single argument-less
// instruction that takes no accounts and only logs the program identity.
package greeter

import (
	"github.com/fortiblox/x1-anchor/pkg/anchor"
	"github.com/fortiblox/x1-anchor/pkg/types"
)

// ProgramID is the deployed identity of the program.
var ProgramID = types.MustPubkeyFromBase58("3GUbnxw466eagkVxL5fP4Z3EYn5yfv3Ch6sMofzBCRqq")

// Name is the program name published in the IDL.
const Name = "anchor"

// New builds the sealed program.
func New() *anchor.Program {
	p := anchor.NewProgram(ProgramID, Name)
	p.MustRegister(
		anchor.Handle0("initialize", anchor.NewSchema(), initialize),
	)
	return p.Seal()
}

func initialize(ctx *anchor.Context) error {
	ctx.Msg("Greetings from: %s", ctx.ProgramID())
	return nil
}
