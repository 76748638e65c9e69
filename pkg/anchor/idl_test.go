package anchor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-anchor/pkg/types"
)

type transferArgs struct {
	Amount    uint64
	NewOwner  types.Pubkey
	Memo      string
	Tags      []uint16
	Payload   []byte
	Limit     *uint32
	Route     route
	Checksums [4]uint8
}

type route struct {
	Hops uint8
}

func TestProgram_IDL(t *testing.T) {
	typ := NewAccountType("Vault", testProgramID)
	p := NewProgram(testProgramID, "bank")
	p.MustRegister(
		Handle("transfer", NewSchema(
			SignerField("authority"),
			StateField("vault", typ, Mut(), HasOne("authority", 8)),
			ProgramField("system_program", types.SystemProgramID),
		), func(*Context, *transferArgs) error { return nil }),
	)

	idl := p.IDL()
	require.Equal(t, testProgramID.String(), idl.Address)
	require.Equal(t, "bank", idl.Metadata.Name)
	require.Len(t, idl.Instructions, 1)

	ix := idl.Instructions[0]
	require.Equal(t, "transfer", ix.Name)
	require.Equal(t, []IDLAccountItem{
		{Name: "authority", Signer: true},
		{Name: "vault", Writable: true},
		{Name: "system_program", Address: types.SystemProgramID.String()},
	}, ix.Accounts)

	raw, err := json.Marshal(ix.Args)
	require.NoError(t, err)
	require.JSONEq(t, `[
		{"name":"amount","type":"u64"},
		{"name":"new_owner","type":"pubkey"},
		{"name":"memo","type":"string"},
		{"name":"tags","type":{"vec":"u16"}},
		{"name":"payload","type":"bytes"},
		{"name":"limit","type":{"option":"u32"}},
		{"name":"route","type":{"defined":{"name":"route"}}},
		{"name":"checksums","type":{"array":["u8",4]}}
	]`, string(raw))

	require.Equal(t, []IDLAccount{{Name: "Vault", Discriminator: typ.Discriminator.Ints()}}, idl.Accounts)
	require.Len(t, idl.Types, 1)
	require.Equal(t, "route", idl.Types[0].Name)
}

func TestIDL_EmptyListsRenderAsArrays(t *testing.T) {
	p := NewProgram(testProgramID, "empty")
	p.MustRegister(Handle0("noop", NewSchema(), func(*Context) error { return nil }))

	raw, err := p.IDL().JSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	ix := decoded["instructions"].([]interface{})[0].(map[string]interface{})
	require.Equal(t, []interface{}{}, ix["accounts"])
	require.Equal(t, []interface{}{}, ix["args"])
	require.NotContains(t, decoded, "accounts")
}

func TestSnakeCase(t *testing.T) {
	for in, want := range map[string]string{
		"Amount":   "amount",
		"NewOwner": "new_owner",
		"ID":       "id",
		"UserID":   "user_id",
		"HTTPPort": "http_port",
	} {
		require.Equal(t, want, snakeCase(in), in)
	}
}
