// Package vault is a small lamport vault built on the engine. Each authority
// owns one vault at the address derived from ["vault", authority].
//
// Accounts are provisioned by the host: open expects a zero-filled account
// of StateSize bytes already owned by the program.
package vault

import (
	"math/bits"

	"github.com/fortiblox/x1-anchor/pkg/anchor"
	"github.com/fortiblox/x1-anchor/pkg/codec"
	"github.com/fortiblox/x1-anchor/pkg/pda"
	"github.com/fortiblox/x1-anchor/pkg/types"
)

// ProgramID is the vault program identity.
var ProgramID = types.MustPubkeyFromBase58("Vau1t11111111111111111111111111111111111111")

// Name is the program name published in the IDL.
const Name = "vault"

// Custom error codes.
const (
	ErrCodeInsufficientFunds uint32 = 6000 + iota
	ErrCodeAlreadyOpen
	ErrCodeZeroAmount
	ErrCodeOverflow
)

// StateType is the typed state kind held by every vault.
var StateType = anchor.NewAccountType("Vault", ProgramID)

// State is the vault record stored after the discriminator.
type State struct {
	Authority types.Pubkey
	Bump      uint8
	Deposited uint64
}

// StateSize is the full account size: discriminator plus State.
const StateSize = codec.DiscriminatorSize + types.PubkeyLength + 1 + 8

// authorityOffset is where State.Authority starts in the account data.
const authorityOffset = codec.DiscriminatorSize

// AmountArgs is the argument of deposit and withdraw.
type AmountArgs struct {
	Amount uint64
}

// Address derives the vault address for authority.
func Address(authority types.Pubkey) (types.Pubkey, uint8, error) {
	return pda.FindProgramAddress([][]byte{[]byte("vault"), authority[:]}, ProgramID)
}

func vaultSeeds() anchor.Constraint {
	return anchor.Seeds(anchor.SeedString("vault"), anchor.SeedKey("authority")).WithBump()
}

// New builds the sealed program.
func New() *anchor.Program {
	p := anchor.NewProgram(ProgramID, Name)
	p.MustRegister(
		anchor.Handle0("open", anchor.NewSchema(
			anchor.SignerField("authority"),
			anchor.AccountField("vault", anchor.Mut(), anchor.Owner(ProgramID), vaultSeeds()),
		), open),
		anchor.Handle("deposit", anchor.NewSchema(
			anchor.SignerField("authority", anchor.Mut()),
			anchor.StateField("vault", StateType, anchor.Mut(), vaultSeeds(), anchor.HasOne("authority", authorityOffset)),
		), deposit),
		anchor.Handle("withdraw", anchor.NewSchema(
			anchor.SignerField("authority", anchor.Mut()),
			anchor.StateField("vault", StateType, anchor.Mut(), vaultSeeds(), anchor.HasOne("authority", authorityOffset)),
		), withdraw),
		anchor.Handle0("balance", anchor.NewSchema(
			anchor.StateField("vault", StateType),
		), balance),
	)
	return p.Seal()
}

func open(ctx *anchor.Context) error {
	vault := ctx.Account("vault")
	for _, b := range vault.Data() {
		if b != 0 {
			return ctx.Fail(ErrCodeAlreadyOpen, "vault already open")
		}
	}
	bump, _ := ctx.Bump("vault")
	if err := vault.Resize(StateSize); err != nil {
		return err
	}
	state := State{Authority: ctx.Account("authority").Key(), Bump: bump}
	if err := storeState(vault, &state); err != nil {
		return err
	}
	ctx.Msg("Opened vault for %s", state.Authority)
	return nil
}

func deposit(ctx *anchor.Context, args *AmountArgs) error {
	if args.Amount == 0 {
		return ctx.Fail(ErrCodeZeroAmount, "amount must be positive")
	}
	authority, vault := ctx.Account("authority"), ctx.Account("vault")
	if authority.Lamports() < args.Amount {
		return ctx.Fail(ErrCodeInsufficientFunds, "authority balance too low")
	}

	var state State
	if err := vault.Load(&state); err != nil {
		return err
	}
	deposited, ok := add(state.Deposited, args.Amount)
	if !ok {
		return ctx.Fail(ErrCodeOverflow, "deposited total overflows")
	}
	balance, ok := add(vault.Lamports(), args.Amount)
	if !ok {
		return ctx.Fail(ErrCodeOverflow, "vault balance overflows")
	}
	state.Deposited = deposited

	if err := authority.SetLamports(authority.Lamports() - args.Amount); err != nil {
		return err
	}
	if err := vault.SetLamports(balance); err != nil {
		return err
	}
	if err := vault.Store(&state); err != nil {
		return err
	}
	ctx.Msg("Deposited %d", args.Amount)
	return ctx.SetReturn(state.Deposited)
}

func withdraw(ctx *anchor.Context, args *AmountArgs) error {
	if args.Amount == 0 {
		return ctx.Fail(ErrCodeZeroAmount, "amount must be positive")
	}
	authority, vault := ctx.Account("authority"), ctx.Account("vault")

	var state State
	if err := vault.Load(&state); err != nil {
		return err
	}
	if state.Deposited < args.Amount || vault.Lamports() < args.Amount {
		return ctx.Fail(ErrCodeInsufficientFunds, "vault balance too low")
	}
	balance, ok := add(authority.Lamports(), args.Amount)
	if !ok {
		return ctx.Fail(ErrCodeOverflow, "authority balance overflows")
	}
	state.Deposited -= args.Amount

	if err := vault.SetLamports(vault.Lamports() - args.Amount); err != nil {
		return err
	}
	if err := authority.SetLamports(balance); err != nil {
		return err
	}
	if err := vault.Store(&state); err != nil {
		return err
	}
	ctx.Msg("Withdrew %d", args.Amount)
	return ctx.SetReturn(state.Deposited)
}

func balance(ctx *anchor.Context) error {
	var state State
	if err := ctx.Account("vault").Load(&state); err != nil {
		return err
	}
	return ctx.SetReturn(state.Deposited)
}

// storeState writes state with the discriminator in front. open runs before
// the discriminator exists, so it goes through the raw handle.
func storeState(vault *anchor.Account, state *State) error {
	raw, err := codec.EncodeWithDiscriminator(StateType.Discriminator, state)
	if err != nil {
		return err
	}
	return vault.WriteAt(0, raw)
}

// add returns a+b and false when the sum wraps.
func add(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}
