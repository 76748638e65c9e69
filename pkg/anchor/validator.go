package anchor

import (
	"bytes"
	"fmt"

	"github.com/fortiblox/x1-anchor/pkg/codec"
	"github.com/fortiblox/x1-anchor/pkg/pda"
	"github.com/fortiblox/x1-anchor/pkg/types"
)

// Bind checks accounts against schema and returns the bound context. Fields
// are checked in declaration order and each field's constraints in the order
// they were declared; the first failure is returned alone and nothing is
// bound.
func Bind(programID types.Pubkey, schema Schema, accounts []*AccountInfo) (*BoundContext, error) {
	if len(accounts) != len(schema.Fields) {
		return nil, &Error{
			Kind:    KindArityMismatch,
			Message: fmt.Sprintf("expected %d accounts, got %d", len(schema.Fields), len(accounts)),
		}
	}

	bound := newBoundContext(programID, len(accounts))
	for i, f := range schema.Fields {
		info := accounts[i]
		if info == nil {
			return nil, fieldError(KindArityMismatch, f.Name, "account %d missing", i)
		}
		for _, c := range f.Constraints {
			if err := bound.check(f, c, info); err != nil {
				return nil, err
			}
		}
		bound.bind(f, info)
	}
	return bound, nil
}

func (b *BoundContext) check(f Field, c Constraint, info *AccountInfo) error {
	switch c.Kind {
	case ConstraintOwner:
		if info.Owner != c.Key {
			return fieldError(KindOwnerMismatch, f.Name, "owner %s, expected %s", info.Owner, c.Key)
		}
	case ConstraintDiscriminator:
		if len(info.Data) < codec.DiscriminatorSize || !bytes.Equal(info.Data[:codec.DiscriminatorSize], c.Discriminator[:]) {
			return fieldError(KindAccountDiscriminatorMismatch, f.Name, "expected discriminator %s", c.Discriminator)
		}
	case ConstraintSigner:
		if !info.IsSigner {
			return fieldError(KindMissingSigner, f.Name, "%s did not sign", info.Key)
		}
	case ConstraintWritable:
		if !info.IsWritable {
			return fieldError(KindNotWritable, f.Name, "%s is not writable", info.Key)
		}
	case ConstraintExecutable:
		if !info.Executable {
			return fieldError(KindNotExecutable, f.Name, "%s is not executable", info.Key)
		}
	case ConstraintAddress:
		if info.Key != c.Key {
			return fieldError(KindAddressMismatch, f.Name, "address %s, expected %s", info.Key, c.Key)
		}
	case ConstraintSeeds:
		return b.checkSeeds(f, c, info)
	case ConstraintRelation:
		return b.checkRelation(f, c, info)
	default:
		return fieldError(KindRelationshipViolation, f.Name, "unknown constraint %s", c.Kind)
	}
	return nil
}

func (b *BoundContext) checkSeeds(f Field, c Constraint, info *AccountInfo) error {
	seeds := make([][]byte, 0, len(c.Seeds))
	for _, s := range c.Seeds {
		if s.Field == "" {
			seeds = append(seeds, s.Const)
			continue
		}
		ref := b.Account(s.Field)
		if ref == nil {
			return fieldError(KindDerivationMismatch, f.Name, "seed field %q is not bound", s.Field)
		}
		key := ref.Key()
		seeds = append(seeds, key[:])
	}

	var (
		want types.Pubkey
		bump uint8
		err  error
	)
	if c.Bump {
		want, bump, err = pda.FindProgramAddress(seeds, b.programID)
	} else {
		want, err = pda.CreateProgramAddress(seeds, b.programID)
	}
	if err != nil {
		return &Error{Kind: KindDerivationMismatch, Field: f.Name, Err: err}
	}
	if info.Key != want {
		return fieldError(KindDerivationMismatch, f.Name, "address %s, derived %s", info.Key, want)
	}
	if c.Bump {
		b.bumps[f.Name] = bump
	}
	return nil
}

func (b *BoundContext) checkRelation(f Field, c Constraint, info *AccountInfo) error {
	target := b.Account(c.Target)
	if target == nil {
		return fieldError(KindRelationshipViolation, f.Name, "target %q is not bound", c.Target)
	}
	switch c.Relation {
	case RelationHasOne:
		end := c.Offset + types.PubkeyLength
		if end > len(info.Data) {
			return fieldError(KindRelationshipViolation, f.Name, "has_one %s: data too short", c.Target)
		}
		key := target.Key()
		if !bytes.Equal(info.Data[c.Offset:end], key[:]) {
			return fieldError(KindRelationshipViolation, f.Name, "has_one %s: stored key differs", c.Target)
		}
	case RelationOwnedBy:
		if info.Owner != target.Key() {
			return fieldError(KindRelationshipViolation, f.Name, "not owned by %s", c.Target)
		}
	case RelationCustom:
		if !c.Check(info, target.info) {
			return fieldError(KindRelationshipViolation, f.Name, "%s with %s does not hold", c.Name, c.Target)
		}
	default:
		return fieldError(KindRelationshipViolation, f.Name, "unknown relation %d", c.Relation)
	}
	return nil
}
