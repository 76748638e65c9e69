package greeter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-anchor/pkg/anchor"
	"github.com/fortiblox/x1-anchor/pkg/codec"
)

var initializeTag = []byte{175, 175, 109, 31, 13, 152, 155, 237}

func TestInitialize(t *testing.T) {
	p := New()

	fx, err := p.Dispatch(ProgramID, nil, initializeTag)
	require.NoError(t, err)
	require.Equal(t, anchor.PhaseCommitted, fx.Phase)
	require.Equal(t, []string{
		"Program log: Instruction: Initialize",
		"Program log: Greetings from: 3GUbnxw466eagkVxL5fP4Z3EYn5yfv3Ch6sMofzBCRqq",
	}, fx.Logs)
	require.Empty(t, fx.Modified)
	require.Empty(t, fx.ReturnData)
}

func TestInitialize_RejectsAccounts(t *testing.T) {
	_, err := New().Dispatch(ProgramID, []*anchor.AccountInfo{{}}, initializeTag)
	require.ErrorIs(t, err, anchor.ErrArityMismatch)
}

func TestInitialize_RejectsOtherPayloads(t *testing.T) {
	p := New()

	_, err := p.Dispatch(ProgramID, nil, initializeTag[:7])
	require.Equal(t, anchor.KindDecodeError, anchor.KindOf(err))

	_, err = p.Dispatch(ProgramID, nil, append(append([]byte{}, initializeTag...), 1))
	require.Equal(t, anchor.KindDecodeError, anchor.KindOf(err))

	other := codec.InstructionDiscriminator("close")
	_, err = p.Dispatch(ProgramID, nil, other[:])
	require.ErrorIs(t, err, anchor.ErrUnknownInstruction)
}

func TestIDL(t *testing.T) {
	raw, err := New().IDL().JSON()
	require.NoError(t, err)
	require.JSONEq(t, `{
		"address": "3GUbnxw466eagkVxL5fP4Z3EYn5yfv3Ch6sMofzBCRqq",
		"metadata": {
			"name": "anchor",
			"version": "0.1.0",
			"spec": "0.1.0",
			"description": "Created with Anchor"
		},
		"instructions": [
			{
				"name": "initialize",
				"discriminator": [175, 175, 109, 31, 13, 152, 155, 237],
				"accounts": [],
				"args": []
			}
		]
	}`, string(raw))

	var back anchor.IDL
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, "initialize", back.Instructions[0].Name)
}
