package anchor

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-anchor/pkg/codec"
	"github.com/fortiblox/x1-anchor/pkg/types"
)

type depositArgs struct {
	Amount uint64
	Memo   string
}

// spy records every handler invocation.
type spy struct {
	mu    sync.Mutex
	calls map[string]int
}

func (s *spy) hit(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[name]++
}

func (s *spy) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *spy) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func newTestProgram(t *testing.T, s *spy) *Program {
	t.Helper()
	p := NewProgram(testProgramID, "bank")
	p.MustRegister(
		Handle0("ping", NewSchema(), func(ctx *Context) error {
			s.hit("ping")
			ctx.Msg("pong")
			return nil
		}),
		Handle("deposit", NewSchema(
			SignerField("payer"),
			AccountField("vault", Mut()),
		), func(ctx *Context, args *depositArgs) error {
			s.hit("deposit")
			vault := ctx.Account("vault")
			if err := vault.SetLamports(vault.Lamports() + args.Amount); err != nil {
				return err
			}
			ctx.Msg("deposited %d (%s)", args.Amount, args.Memo)
			return ctx.SetReturn(vault.Lamports())
		}),
		Handle("reject", NewSchema(AccountField("vault", Mut())), func(ctx *Context, code *uint32) error {
			s.hit("reject")
			if err := ctx.Account("vault").SetData([]byte("dirty")); err != nil {
				return err
			}
			return ctx.Fail(*code, "rejected")
		}),
		Handle0("sneak", NewSchema(AccountField("config")), func(ctx *Context) error {
			s.hit("sneak")
			// Bypass the handle and scribble on a read-only buffer.
			ctx.Account("config").Data()[0] = 0xff
			return nil
		}),
		Handle0("sweep", NewSchema(
			AccountField("treasury", Owner(testProgramID), Signer(), Mut()),
		), func(ctx *Context) error {
			s.hit("sweep")
			return ctx.Account("treasury").SetLamports(0)
		}),
		Handle0("boom", NewSchema(), func(ctx *Context) error {
			s.hit("boom")
			return errors.New("plain failure")
		}),
	)
	return p.Seal()
}

func payload(t *testing.T, name string, args interface{}) []byte {
	t.Helper()
	d := codec.InstructionDiscriminator(name)
	if args == nil {
		return d[:]
	}
	raw, err := codec.EncodeWithDiscriminator(d, args)
	require.NoError(t, err)
	return raw
}

func TestDispatch_RoutesToExactlyOneHandler(t *testing.T) {
	s := &spy{}
	p := newTestProgram(t, s)

	fx, err := p.Dispatch(testProgramID, nil, payload(t, "ping", nil))
	require.NoError(t, err)
	require.Equal(t, PhaseCommitted, fx.Phase)
	require.Equal(t, []string{"Program log: Instruction: Ping", "Program log: pong"}, fx.Logs)
	require.Equal(t, 1, s.count("ping"))
	require.Equal(t, 1, s.total())
}

func TestDispatch_DepositRoundTrip(t *testing.T) {
	s := &spy{}
	p := newTestProgram(t, s)
	payer := &AccountInfo{Key: testPubkey("payer"), IsSigner: true}
	vault := &AccountInfo{Key: testPubkey("vault"), IsWritable: true, Lamports: 10}

	fx, err := p.Dispatch(testProgramID, []*AccountInfo{payer, vault}, payload(t, "deposit", &depositArgs{Amount: 32, Memo: "rent"}))
	require.NoError(t, err)
	require.Equal(t, PhaseCommitted, fx.Phase)
	require.EqualValues(t, 42, vault.Lamports)
	require.Equal(t, []types.Pubkey{vault.Key}, fx.Modified)
	require.Contains(t, fx.Logs, "Program log: deposited 32 (rent)")

	var ret uint64
	require.NoError(t, codec.Decode(fx.ReturnData, &ret))
	require.EqualValues(t, 42, ret)
}

func TestDispatch_UnknownInstruction(t *testing.T) {
	s := &spy{}
	p := newTestProgram(t, s)

	fx, err := p.Dispatch(testProgramID, nil, payload(t, "withdraw", nil))
	e := requireKind(t, err, KindUnknownInstruction)
	require.ErrorIs(t, err, ErrUnknownInstruction)
	require.Equal(t, PhaseReceived, e.Phase)
	require.Equal(t, PhaseAborted, fx.Phase)
	require.Zero(t, s.total())
}

func TestDispatch_ShortPayload(t *testing.T) {
	s := &spy{}
	p := newTestProgram(t, s)

	for _, n := range []int{0, 1, 7} {
		_, err := p.Dispatch(testProgramID, nil, make([]byte, n))
		e := requireKind(t, err, KindDecodeError)
		require.Equal(t, n, e.Offset)
	}
	require.Zero(t, s.total())
}

func TestDispatch_ArgumentDecodeErrors(t *testing.T) {
	s := &spy{}
	p := newTestProgram(t, s)
	accounts := func() []*AccountInfo {
		return []*AccountInfo{
			{Key: testPubkey("payer"), IsSigner: true},
			{Key: testPubkey("vault"), IsWritable: true},
		}
	}

	d := codec.InstructionDiscriminator("deposit")
	truncated := append(d[:], 1, 2, 3, 4)
	_, err := p.Dispatch(testProgramID, accounts(), truncated)
	e := requireKind(t, err, KindDecodeError)
	require.Equal(t, 8, e.Offset)
	require.Equal(t, "deposit", e.Instruction)

	full := payload(t, "deposit", &depositArgs{Amount: 1, Memo: "x"})
	_, err = p.Dispatch(testProgramID, accounts(), append(full, 0))
	e = requireKind(t, err, KindDecodeError)
	require.Equal(t, len(full), e.Offset)
	require.ErrorIs(t, err, codec.ErrTrailingBytes)

	_, err = p.Dispatch(testProgramID, nil, append(payload(t, "ping", nil), 0))
	e = requireKind(t, err, KindDecodeError)
	require.Equal(t, 8, e.Offset)

	require.Zero(t, s.total())
}

func TestDispatch_ValidationFailureSkipsHandler(t *testing.T) {
	s := &spy{}
	p := newTestProgram(t, s)
	args := payload(t, "deposit", &depositArgs{Amount: 1})

	_, err := p.Dispatch(testProgramID, []*AccountInfo{{IsSigner: true}}, args)
	requireKind(t, err, KindArityMismatch)

	_, err = p.Dispatch(testProgramID, []*AccountInfo{{}, {IsWritable: true}}, args)
	e := requireKind(t, err, KindMissingSigner)
	require.Equal(t, PhaseValidating, e.Phase)
	require.Equal(t, "payer", e.Field)
	require.Equal(t, "deposit", e.Instruction)

	// wrong owner and no signature: owner is declared first and wins
	treasury := &AccountInfo{Key: testPubkey("treasury"), Owner: otherProgram, IsWritable: true, Lamports: 9}
	fx, err := p.Dispatch(testProgramID, []*AccountInfo{treasury}, payload(t, "sweep", nil))
	e = requireKind(t, err, KindOwnerMismatch)
	require.Equal(t, "treasury", e.Field)
	require.Equal(t, PhaseAborted, fx.Phase)
	require.EqualValues(t, 9, treasury.Lamports)

	require.Zero(t, s.total())

	treasury.Owner, treasury.IsSigner = testProgramID, true
	_, err = p.Dispatch(testProgramID, []*AccountInfo{treasury}, payload(t, "sweep", nil))
	require.NoError(t, err)
	require.Equal(t, 1, s.count("sweep"))
	require.Zero(t, treasury.Lamports)
}

func TestDispatch_HandlerErrorRestoresState(t *testing.T) {
	s := &spy{}
	p := newTestProgram(t, s)
	vault := &AccountInfo{Key: testPubkey("vault"), IsWritable: true, Data: []byte("clean")}
	code := uint32(6001)

	fx, err := p.Dispatch(testProgramID, []*AccountInfo{vault}, payload(t, "reject", &code))
	e := requireKind(t, err, KindHandlerError)
	require.Equal(t, uint32(6001), e.Code)
	require.Equal(t, "rejected", e.Message)
	require.Equal(t, PhaseExecuting, e.Phase)
	require.Equal(t, PhaseAborted, fx.Phase)
	require.Nil(t, fx.Modified)
	require.Equal(t, []byte("clean"), vault.Data)
	require.Equal(t, 1, s.count("reject"))

	_, err = p.Dispatch(testProgramID, nil, payload(t, "boom", nil))
	e = requireKind(t, err, KindHandlerError)
	require.EqualError(t, e.Err, "plain failure")
}

func TestDispatch_ReadOnlyMutationAborts(t *testing.T) {
	s := &spy{}
	p := newTestProgram(t, s)
	config := &AccountInfo{Key: testPubkey("config"), Data: []byte{1, 2}}

	fx, err := p.Dispatch(testProgramID, []*AccountInfo{config}, payload(t, "sneak", nil))
	e := requireKind(t, err, KindNotWritable)
	require.Equal(t, "config", e.Field)
	require.Equal(t, PhaseExecuting, e.Phase)
	require.Equal(t, PhaseAborted, fx.Phase)
	require.Equal(t, []byte{1, 2}, config.Data)
}

func TestDispatch_ProgramMismatch(t *testing.T) {
	s := &spy{}
	p := newTestProgram(t, s)

	_, err := p.Dispatch(otherProgram, nil, payload(t, "ping", nil))
	requireKind(t, err, KindProgramMismatch)
	require.Zero(t, s.total())
}

func TestProgram_Register(t *testing.T) {
	p := NewProgram(testProgramID, "p")
	noop := func(*Context) error { return nil }

	require.NoError(t, p.Register(Handle0("a", NewSchema(), noop)))
	require.ErrorIs(t, p.Register(Handle0("a", NewSchema(), noop)), ErrDuplicateInstruction)

	bad := NewSchema(AccountField("x", HasOne("y", 0)), AccountField("y"))
	require.ErrorIs(t, p.Register(Handle0("b", bad, noop)), ErrForwardReference)

	p.Seal()
	require.ErrorIs(t, p.Register(Handle0("c", NewSchema(), noop)), ErrSealed)
	require.Len(t, p.Instructions(), 1)

	ix, ok := p.Lookup(codec.InstructionDiscriminator("a"))
	require.True(t, ok)
	require.Equal(t, "a", ix.Name)
}

func TestDispatch_Concurrent(t *testing.T) {
	s := &spy{}
	p := newTestProgram(t, s)

	ping := payload(t, "ping", nil)
	errs := make(chan error, 16)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Dispatch(testProgramID, nil, ping)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 16, s.count("ping"))
}

func TestContext_LogLimit(t *testing.T) {
	ctx := &Context{BoundContext: newBoundContext(testProgramID, 0)}
	for i := 0; i < MaxLogMessages+10; i++ {
		ctx.Msg("line %d", i)
	}
	require.Len(t, ctx.logs, MaxLogMessages+1)
	require.Equal(t, "Log truncated", ctx.logs[MaxLogMessages])

	require.Error(t, ctx.SetReturn(make([]byte, MaxReturnDataLength)))
	require.NoError(t, ctx.SetReturn(uint8(1)))
}

func TestInstruction_LogName(t *testing.T) {
	require.Equal(t, "Initialize", Handle0("initialize", NewSchema(), nil).logName())
	require.Equal(t, "MakeDeposit", Handle0("make_deposit", NewSchema(), nil).logName())
}
