package anchor

import (
	"fmt"

	"github.com/fortiblox/x1-anchor/pkg/codec"
	"github.com/fortiblox/x1-anchor/pkg/types"
)

const (
	// MaxLogMessages caps the log lines one call may emit.
	MaxLogMessages = 64
	// MaxReturnDataLength caps the encoded return value.
	MaxReturnDataLength = 1024

	logPrefix    = "Program log: "
	logTruncated = "Log truncated"
)

// BoundContext is the result of a successful Bind: one handle per schema
// field plus the canonical bumps found while checking derived addresses.
type BoundContext struct {
	programID types.Pubkey
	accounts  []*Account
	index     map[string]int
	bumps     map[string]uint8
}

func newBoundContext(programID types.Pubkey, n int) *BoundContext {
	return &BoundContext{
		programID: programID,
		accounts:  make([]*Account, 0, n),
		index:     make(map[string]int, n),
		bumps:     make(map[string]uint8),
	}
}

func (b *BoundContext) bind(f Field, info *AccountInfo) {
	b.index[f.Name] = len(b.accounts)
	b.accounts = append(b.accounts, &Account{field: f.Name, info: info, typ: f.Type})
}

// ProgramID returns the identity of the program being called.
func (b *BoundContext) ProgramID() types.Pubkey { return b.programID }

// Account returns the handle bound to the named field, or nil.
func (b *BoundContext) Account(name string) *Account {
	i, ok := b.index[name]
	if !ok {
		return nil
	}
	return b.accounts[i]
}

// Accounts returns the handles in schema order.
func (b *BoundContext) Accounts() []*Account { return b.accounts }

// Len returns the number of bound accounts.
func (b *BoundContext) Len() int { return len(b.accounts) }

// Bump returns the canonical bump recorded for a seeds constraint declared
// with WithBump.
func (b *BoundContext) Bump(name string) (uint8, bool) {
	v, ok := b.bumps[name]
	return v, ok
}

// Bumps returns a copy of every recorded bump.
func (b *BoundContext) Bumps() map[string]uint8 {
	out := make(map[string]uint8, len(b.bumps))
	for k, v := range b.bumps {
		out[k] = v
	}
	return out
}

// Context is what a handler sees for one call.
type Context struct {
	*BoundContext

	instruction string
	logs        []string
	truncated   bool
	returnData  []byte
}

// Instruction returns the name of the running instruction.
func (c *Context) Instruction() string { return c.instruction }

// Msg appends a program log line.
func (c *Context) Msg(format string, args ...interface{}) {
	c.log(logPrefix + fmt.Sprintf(format, args...))
}

func (c *Context) log(line string) {
	if c.truncated {
		return
	}
	if len(c.logs) >= MaxLogMessages {
		c.logs = append(c.logs, logTruncated)
		c.truncated = true
		return
	}
	c.logs = append(c.logs, line)
}

// SetReturn encodes v as the call's return data, replacing any earlier value.
func (c *Context) SetReturn(v interface{}) error {
	raw, err := codec.Encode(v)
	if err != nil {
		return err
	}
	if len(raw) > MaxReturnDataLength {
		return fmt.Errorf("return data is %d bytes, limit %d", len(raw), MaxReturnDataLength)
	}
	c.returnData = raw
	return nil
}

// Fail builds a business-rule error for the handler to return.
func (c *Context) Fail(code uint32, message string) error {
	return NewHandlerError(code, message)
}

// Effects is what a call leaves behind.
type Effects struct {
	Phase Phase
	// Instruction is the routed instruction, empty if routing failed.
	Instruction string
	Logs        []string
	ReturnData  []byte
	// Modified lists writable accounts whose state the handler changed, in
	// schema order.
	Modified []types.Pubkey
}
