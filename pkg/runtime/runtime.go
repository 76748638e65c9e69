// Package runtime hosts anchor programs over an accounts store. It verifies
// signatures, loads the accounts a transaction names, dispatches every
// instruction in order and commits the result atomically.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortiblox/x1-anchor/pkg/accounts"
	"github.com/fortiblox/x1-anchor/pkg/anchor"
	"github.com/fortiblox/x1-anchor/pkg/crypto"
	"github.com/fortiblox/x1-anchor/pkg/metrics"
	"github.com/fortiblox/x1-anchor/pkg/types"
)

// ErrProgramNotFound indicates the program is not registered.
var ErrProgramNotFound = errors.New("program not found")

// InstructionError contains details about an instruction failure.
type InstructionError struct {
	InstructionIndex int
	ProgramID        types.Pubkey
	Err              error
}

// Error implements the error interface.
func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d (program %s) failed: %v", e.InstructionIndex, e.ProgramID, e.Err)
}

// Unwrap returns the underlying error.
func (e *InstructionError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one transaction.
type Result struct {
	// Success is true when every instruction committed.
	Success bool
	// Err is the failure that aborted the transaction.
	Err error
	// Logs holds runtime and program log lines across all instructions.
	Logs []string
	// ReturnData is the return value of the last instruction that set one.
	ReturnData []byte
	// Effects holds the per-instruction effects, up to and including a
	// failed instruction.
	Effects []*anchor.Effects
	// Deltas lists the accounts the transaction changed. Empty on failure.
	Deltas []types.AccountDelta
	// DeltaHash commits to Deltas.
	DeltaHash types.Hash
	// Signers lists the pubkeys whose signature verified.
	Signers []types.Pubkey
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithVerifier replaces the Ed25519 signature verifier.
func WithVerifier(v crypto.SignatureVerifier) Option {
	return func(r *Runtime) { r.verifier = v }
}

// SkipSignatureVerification trusts every claimed signer.
func SkipSignatureVerification() Option {
	return WithVerifier(crypto.TrustingVerifier{})
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Runtime) { r.log = l }
}

// WithMetrics records dispatch and transaction metrics into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runtime) { r.metrics = c }
}

// Runtime executes transactions against an accounts store. Transactions run
// one at a time.
type Runtime struct {
	mu       sync.Mutex
	db       accounts.AccountsDB
	registry *ProgramRegistry
	verifier crypto.SignatureVerifier
	log      logrus.FieldLogger
	metrics  *metrics.Collector
}

// New creates a runtime.
func New(db accounts.AccountsDB, registry *ProgramRegistry, opts ...Option) *Runtime {
	r := &Runtime{
		db:       db,
		registry: registry,
		verifier: crypto.Ed25519Verifier{},
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the program registry.
func (r *Runtime) Registry() *ProgramRegistry { return r.registry }

// Execute runs tx and commits its changes. A transaction that fails is
// reported through Result.Err and leaves the store untouched; the returned
// error is reserved for cancellation and storage failures.
func (r *Runtime) Execute(ctx context.Context, tx *Transaction) (*Result, error) {
	return r.run(ctx, tx, true)
}

// Simulate runs tx like Execute but never commits.
func (r *Runtime) Simulate(ctx context.Context, tx *Transaction) (*Result, error) {
	return r.run(ctx, tx, false)
}

func (r *Runtime) run(ctx context.Context, tx *Transaction, commit bool) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := &Result{}
	if err := ctx.Err(); err != nil {
		return r.fail(result, err), err
	}
	if err := tx.validate(); err != nil {
		return r.fail(result, err), nil
	}

	verified, err := r.verify(tx)
	if err != nil {
		return r.fail(result, err), nil
	}
	for _, pk := range tx.Signers() {
		if verified[pk] {
			result.Signers = append(result.Signers, pk)
		}
	}

	ws, err := r.load(tx.accountKeys())
	if err != nil {
		return r.fail(result, err), err
	}

	for i := range tx.Instructions {
		if err := ctx.Err(); err != nil {
			return r.fail(result, err), err
		}
		if err := r.executeInstruction(result, ws, i, &tx.Instructions[i], verified); err != nil {
			return r.fail(result, err), nil
		}
	}

	result.Deltas = ws.deltas()
	if commit {
		if err := r.db.Commit(result.Deltas); err != nil {
			err = fmt.Errorf("failed to commit transaction: %w", err)
			return r.fail(result, err), err
		}
	}
	result.DeltaHash = accounts.ComputeDeltaHash(result.Deltas)
	result.Success = true

	if r.metrics != nil {
		committed := 0
		if commit {
			committed = len(result.Deltas)
		}
		r.metrics.RecordTransaction(nil, committed)
	}
	r.log.WithFields(logrus.Fields{
		"instructions": len(tx.Instructions),
		"changed":      len(result.Deltas),
		"delta_hash":   result.DeltaHash.String(),
		"committed":    commit,
	}).Debug("Transaction executed")
	return result, nil
}

func (r *Runtime) fail(result *Result, err error) *Result {
	result.Err = err
	result.Success = false
	result.Deltas = nil
	result.DeltaHash = types.Hash{}
	if r.metrics != nil {
		r.metrics.RecordTransaction(err, 0)
	}
	r.log.WithError(err).Debug("Transaction aborted")
	return result
}

// verify returns the set of signers whose signature checks out. Signers
// without a valid signature are left out rather than rejected; the engine
// reports MissingSigner if an instruction needs one of them.
func (r *Runtime) verify(tx *Transaction) (map[types.Pubkey]bool, error) {
	msg, err := tx.Message()
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	verified, errs := crypto.VerifySigners(r.verifier, msg, tx.Signers(), tx.Signatures)
	for _, e := range errs {
		r.log.WithError(e).Debug("Signer not verified")
	}
	return verified, nil
}

func (r *Runtime) load(keys []types.Pubkey) (*workingSet, error) {
	ws := newWorkingSet(len(keys))
	for _, pk := range keys {
		acc, err := r.db.GetAccount(pk)
		if err != nil {
			return nil, fmt.Errorf("failed to load account %s: %w", pk, err)
		}
		ws.add(pk, acc)
	}
	if r.metrics != nil {
		r.metrics.RecordAccountsLoaded(len(keys))
	}
	return ws, nil
}

func (r *Runtime) executeInstruction(result *Result, ws *workingSet, index int, ix *types.Instruction, verified map[types.Pubkey]bool) error {
	prog, ok := r.registry.Get(ix.ProgramID)
	if !ok {
		return &InstructionError{
			InstructionIndex: index,
			ProgramID:        ix.ProgramID,
			Err:              fmt.Errorf("%w: %s", ErrProgramNotFound, ix.ProgramID),
		}
	}

	// A pubkey named more than once shares one handle, signer or writable
	// if any of its metas is.
	infos := make([]*anchor.AccountInfo, len(ix.Accounts))
	shared := make(map[types.Pubkey]*anchor.AccountInfo, len(ix.Accounts))
	for j, meta := range ix.Accounts {
		info, ok := shared[meta.Pubkey]
		if !ok {
			info = ws.info(meta.Pubkey)
			shared[meta.Pubkey] = info
		}
		info.IsSigner = info.IsSigner || (meta.IsSigner && verified[meta.Pubkey])
		info.IsWritable = info.IsWritable || meta.IsWritable
		infos[j] = info
	}

	result.Logs = append(result.Logs, fmt.Sprintf("Program %s invoke [1]", ix.ProgramID))
	start := time.Now()
	fx, err := prog.Dispatch(ix.ProgramID, infos, ix.Data)
	elapsed := time.Since(start)
	if fx == nil {
		fx = &anchor.Effects{Phase: anchor.PhaseAborted}
		if err == nil {
			fx.Phase = anchor.PhaseCommitted
		}
	}

	result.Effects = append(result.Effects, fx)
	result.Logs = append(result.Logs, fx.Logs...)
	if r.metrics != nil {
		r.metrics.RecordDispatch(prog.Name(), fx.Instruction, string(anchor.KindOf(err)), elapsed)
	}

	fields := logrus.Fields{
		"index":       index,
		"program":     prog.Name(),
		"instruction": fx.Instruction,
		"phase":       fx.Phase.String(),
		"elapsed":     elapsed,
	}
	if err != nil {
		result.Logs = append(result.Logs, fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
		r.log.WithFields(fields).WithError(err).Debug("Instruction aborted")
		return &InstructionError{InstructionIndex: index, ProgramID: ix.ProgramID, Err: err}
	}
	result.Logs = append(result.Logs, fmt.Sprintf("Program %s success", ix.ProgramID))
	r.log.WithFields(fields).Debug("Instruction committed")

	for pk, info := range shared {
		if info.IsWritable {
			ws.store(pk, info)
		}
	}
	if fx.ReturnData != nil {
		result.ReturnData = fx.ReturnData
	}
	return nil
}

// workingSet holds the transaction's view of every account it touches.
// Nothing in it reaches the store until the whole transaction succeeded.
type workingSet struct {
	order    []types.Pubkey
	original map[types.Pubkey]*types.Account
	current  map[types.Pubkey]*types.Account
}

func newWorkingSet(n int) *workingSet {
	return &workingSet{
		order:    make([]types.Pubkey, 0, n),
		original: make(map[types.Pubkey]*types.Account, n),
		current:  make(map[types.Pubkey]*types.Account, n),
	}
}

// add records pk as loaded. A missing account starts out empty and owned by
// the system program.
func (ws *workingSet) add(pk types.Pubkey, acc *types.Account) {
	ws.order = append(ws.order, pk)
	ws.original[pk] = acc
	if acc == nil {
		ws.current[pk] = types.NewAccount(0, types.SystemProgramID)
		return
	}
	ws.current[pk] = acc.Clone()
}

// info hands out a private copy of the current state.
func (ws *workingSet) info(pk types.Pubkey) *anchor.AccountInfo {
	acc := ws.current[pk]
	info := &anchor.AccountInfo{
		Key:        pk,
		Owner:      acc.Owner,
		Lamports:   uint64(acc.Lamports),
		Executable: acc.Executable,
	}
	if acc.Data != nil {
		info.Data = make([]byte, len(acc.Data))
		copy(info.Data, acc.Data)
	}
	return info
}

func (ws *workingSet) store(pk types.Pubkey, info *anchor.AccountInfo) {
	acc := ws.current[pk]
	acc.Owner = info.Owner
	acc.Lamports = types.Lamports(info.Lamports)
	acc.Executable = info.Executable
	acc.Data = info.Data
}

// deltas lists changed accounts in load order. Accounts that never existed
// and are still empty are not created.
func (ws *workingSet) deltas() []types.AccountDelta {
	var out []types.AccountDelta
	for _, pk := range ws.order {
		old, cur := ws.original[pk], ws.current[pk]
		if old == nil {
			if cur.IsEmpty() && cur.Owner == types.SystemProgramID && !cur.Executable {
				continue
			}
		} else if old.Equal(cur) {
			continue
		}
		out = append(out, types.AccountDelta{Pubkey: pk, OldAccount: old, NewAccount: cur.Clone()})
	}
	return out
}
