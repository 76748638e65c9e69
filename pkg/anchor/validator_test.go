package anchor

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-anchor/pkg/codec"
	"github.com/fortiblox/x1-anchor/pkg/pda"
	"github.com/fortiblox/x1-anchor/pkg/types"
)

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(sha256.Sum256([]byte(seed)))
}

var (
	testProgramID = testPubkey("program")
	otherProgram  = testPubkey("other")
)

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, KindOf(err), "error: %v", err)
	e, ok := err.(*Error)
	require.True(t, ok)
	return e
}

func TestBind_ArityMismatch(t *testing.T) {
	schema := NewSchema(AccountField("a"), AccountField("b"))

	for _, n := range []int{0, 1, 3} {
		accounts := make([]*AccountInfo, n)
		for i := range accounts {
			accounts[i] = &AccountInfo{Key: testPubkey("acc")}
		}
		bound, err := Bind(testProgramID, schema, accounts)
		requireKind(t, err, KindArityMismatch)
		require.Nil(t, bound)
	}

	_, err := Bind(testProgramID, schema, []*AccountInfo{{}, nil})
	e := requireKind(t, err, KindArityMismatch)
	require.Equal(t, "b", e.Field)
}

func TestBind_ConstraintOrderWithinField(t *testing.T) {
	// Unsigned and owned by the wrong program: both checks fail, the first
	// declared one is reported.
	acc := &AccountInfo{Key: testPubkey("x"), Owner: otherProgram}

	_, err := Bind(testProgramID, NewSchema(AccountField("x", Signer(), Owner(testProgramID))), []*AccountInfo{acc})
	requireKind(t, err, KindMissingSigner)

	_, err = Bind(testProgramID, NewSchema(AccountField("x", Owner(testProgramID), Signer())), []*AccountInfo{acc})
	requireKind(t, err, KindOwnerMismatch)
}

func TestBind_FieldOrder(t *testing.T) {
	schema := NewSchema(
		AccountField("first", Mut()),
		AccountField("second", Signer()),
	)
	_, err := Bind(testProgramID, schema, []*AccountInfo{{}, {}})
	e := requireKind(t, err, KindNotWritable)
	require.Equal(t, "first", e.Field)
}

func TestBind_SimpleConstraints(t *testing.T) {
	typ := NewAccountType("Vault", testProgramID)
	goodData := append(typ.Discriminator[:], make([]byte, 8)...)
	other := codec.AccountDiscriminator("Other")

	tests := []struct {
		name    string
		field   Field
		account AccountInfo
		want    Kind
	}{
		{"owner ok", AccountField("a", Owner(testProgramID)), AccountInfo{Owner: testProgramID}, ""},
		{"owner bad", AccountField("a", Owner(testProgramID)), AccountInfo{Owner: otherProgram}, KindOwnerMismatch},
		{"signer ok", SignerField("a"), AccountInfo{IsSigner: true}, ""},
		{"signer bad", SignerField("a"), AccountInfo{}, KindMissingSigner},
		{"mut ok", AccountField("a", Mut()), AccountInfo{IsWritable: true}, ""},
		{"mut bad", AccountField("a", Mut()), AccountInfo{}, KindNotWritable},
		{"executable bad", AccountField("a", Executable()), AccountInfo{}, KindNotExecutable},
		{"address ok", AccountField("a", Address(otherProgram)), AccountInfo{Key: otherProgram}, ""},
		{"address bad", AccountField("a", Address(otherProgram)), AccountInfo{Key: testProgramID}, KindAddressMismatch},
		{"program ok", ProgramField("a", otherProgram), AccountInfo{Key: otherProgram, Executable: true}, ""},
		{"program not executable", ProgramField("a", otherProgram), AccountInfo{Key: otherProgram}, KindNotExecutable},
		{"state ok", StateField("a", typ), AccountInfo{Owner: testProgramID, Data: goodData}, ""},
		{"state wrong owner", StateField("a", typ), AccountInfo{Owner: otherProgram, Data: goodData}, KindOwnerMismatch},
		{"state short data", StateField("a", typ), AccountInfo{Owner: testProgramID, Data: []byte{1}}, KindAccountDiscriminatorMismatch},
		{
			"state other type",
			StateField("a", typ),
			AccountInfo{Owner: testProgramID, Data: append(other[:], 0)},
			KindAccountDiscriminatorMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := tt.account
			bound, err := Bind(testProgramID, NewSchema(tt.field), []*AccountInfo{&acc})
			if tt.want == "" {
				require.NoError(t, err)
				require.Equal(t, 1, bound.Len())
				require.Equal(t, "a", bound.Account("a").Name())
				return
			}
			requireKind(t, err, tt.want)
			require.Nil(t, bound)
		})
	}
}

func TestBind_SeedsWithBump(t *testing.T) {
	authority := testPubkey("authority")
	vault, bump, err := pda.FindProgramAddress([][]byte{[]byte("vault"), authority[:]}, testProgramID)
	require.NoError(t, err)

	schema := NewSchema(
		SignerField("authority"),
		AccountField("vault", Seeds(SeedString("vault"), SeedKey("authority")).WithBump()),
	)

	bound, err := Bind(testProgramID, schema, []*AccountInfo{
		{Key: authority, IsSigner: true},
		{Key: vault},
	})
	require.NoError(t, err)
	got, ok := bound.Bump("vault")
	require.True(t, ok)
	require.Equal(t, bump, got)
	require.Equal(t, map[string]uint8{"vault": bump}, bound.Bumps())

	_, err = Bind(testProgramID, schema, []*AccountInfo{
		{Key: authority, IsSigner: true},
		{Key: testPubkey("not the vault")},
	})
	e := requireKind(t, err, KindDerivationMismatch)
	require.Equal(t, "vault", e.Field)

	// Same seeds under another program derive another address.
	_, err = Bind(otherProgram, schema, []*AccountInfo{
		{Key: authority, IsSigner: true},
		{Key: vault},
	})
	requireKind(t, err, KindDerivationMismatch)
}

func TestBind_SeedsExplicitBump(t *testing.T) {
	authority := testPubkey("authority")
	vault, bump, err := pda.FindProgramAddress([][]byte{[]byte("vault"), authority[:]}, testProgramID)
	require.NoError(t, err)

	schema := NewSchema(
		AccountField("authority"),
		AccountField("vault", Seeds(SeedString("vault"), SeedKey("authority"), SeedBytes([]byte{bump}))),
	)
	bound, err := Bind(testProgramID, schema, []*AccountInfo{{Key: authority}, {Key: vault}})
	require.NoError(t, err)
	_, ok := bound.Bump("vault")
	require.False(t, ok)
}

func TestBind_Relations(t *testing.T) {
	authority := testPubkey("authority")
	stored := make([]byte, 8+32+8)
	copy(stored[8:], authority[:])

	hasOne := NewSchema(AccountField("authority"), AccountField("state", HasOne("authority", 8)))

	_, err := Bind(testProgramID, hasOne, []*AccountInfo{{Key: authority}, {Data: stored}})
	require.NoError(t, err)

	_, err = Bind(testProgramID, hasOne, []*AccountInfo{{Key: testPubkey("mallory")}, {Data: stored}})
	requireKind(t, err, KindRelationshipViolation)

	_, err = Bind(testProgramID, hasOne, []*AccountInfo{{Key: authority}, {Data: stored[:20]}})
	requireKind(t, err, KindRelationshipViolation)

	ownedBy := NewSchema(AccountField("program"), AccountField("child", OwnedBy("program")))
	_, err = Bind(testProgramID, ownedBy, []*AccountInfo{{Key: otherProgram}, {Owner: otherProgram}})
	require.NoError(t, err)
	_, err = Bind(testProgramID, ownedBy, []*AccountInfo{{Key: otherProgram}, {Owner: testProgramID}})
	requireKind(t, err, KindRelationshipViolation)

	richer := Relation("payer", "richer_than", func(self, target *AccountInfo) bool {
		return self.Lamports > target.Lamports
	})
	custom := NewSchema(AccountField("payer"), AccountField("whale", richer))
	_, err = Bind(testProgramID, custom, []*AccountInfo{{Lamports: 1}, {Lamports: 2}})
	require.NoError(t, err)
	_, err = Bind(testProgramID, custom, []*AccountInfo{{Lamports: 2}, {Lamports: 2}})
	e := requireKind(t, err, KindRelationshipViolation)
	require.Contains(t, e.Message, "richer_than")
}

func TestSchema_Validate(t *testing.T) {
	require.NoError(t, NewSchema(AccountField("a"), AccountField("b", HasOne("a", 0))).Validate())

	err := NewSchema(AccountField("a", HasOne("b", 0)), AccountField("b")).Validate()
	require.ErrorIs(t, err, ErrForwardReference)

	err = NewSchema(AccountField("a", Seeds(SeedKey("a")))).Validate()
	require.ErrorIs(t, err, ErrForwardReference)

	err = NewSchema(AccountField("a"), AccountField("a")).Validate()
	require.ErrorIs(t, err, ErrDuplicateField)

	seeds := make([]Seed, pda.MaxSeeds)
	for i := range seeds {
		seeds[i] = SeedString("s")
	}
	require.NoError(t, NewSchema(AccountField("a", Seeds(seeds...))).Validate())
	err = NewSchema(AccountField("a", Seeds(seeds...).WithBump())).Validate()
	require.ErrorIs(t, err, ErrInvalidConstraint)

	err = NewSchema(AccountField("a", Seeds(SeedBytes(make([]byte, pda.MaxSeedLen+1))))).Validate()
	require.ErrorIs(t, err, ErrInvalidConstraint)

	err = NewSchema(AccountField("a"), AccountField("b", Relation("a", "x", nil))).Validate()
	require.ErrorIs(t, err, ErrInvalidConstraint)
}

type vaultState struct {
	Authority types.Pubkey
	Balance   uint64
}

func TestAccount_ReadOnlyMutation(t *testing.T) {
	info := &AccountInfo{Key: testPubkey("ro"), Data: make([]byte, 4), Lamports: 5}
	bound, err := Bind(testProgramID, NewSchema(AccountField("ro")), []*AccountInfo{info})
	require.NoError(t, err)
	acc := bound.Account("ro")

	requireKind(t, acc.SetData([]byte{1}), KindNotWritable)
	requireKind(t, acc.WriteAt(0, []byte{1}), KindNotWritable)
	requireKind(t, acc.Resize(10), KindNotWritable)
	requireKind(t, acc.SetLamports(1), KindNotWritable)
	requireKind(t, acc.Store(uint32(1)), KindNotWritable)

	require.Equal(t, make([]byte, 4), info.Data)
	require.EqualValues(t, 5, info.Lamports)
}

func TestAccount_TypedStateRoundTrip(t *testing.T) {
	typ := NewAccountType("Vault", testProgramID)
	data := make([]byte, 8+32+8+16)
	copy(data, typ.Discriminator[:])
	info := &AccountInfo{Owner: testProgramID, Data: data, IsWritable: true}

	bound, err := Bind(testProgramID, NewSchema(StateField("vault", typ, Mut())), []*AccountInfo{info})
	require.NoError(t, err)
	acc := bound.Account("vault")

	want := vaultState{Authority: testPubkey("authority"), Balance: 99}
	require.NoError(t, acc.Store(&want))
	require.Equal(t, typ.Discriminator[:], info.Data[:8])

	var got vaultState
	require.NoError(t, acc.Load(&got))
	require.Equal(t, want, got)

	require.NoError(t, acc.WriteAt(40, []byte{1}))
	require.Error(t, acc.WriteAt(len(data)-1, []byte{1, 2}))

	require.NoError(t, acc.Resize(8))
	require.Error(t, acc.Store(&want))
}
