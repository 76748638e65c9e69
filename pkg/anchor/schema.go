package anchor

import (
	"fmt"

	"github.com/fortiblox/x1-anchor/pkg/codec"
	"github.com/fortiblox/x1-anchor/pkg/pda"
	"github.com/fortiblox/x1-anchor/pkg/types"
)

// ConstraintKind names one check the validator knows how to run.
type ConstraintKind uint8

const (
	ConstraintOwner ConstraintKind = iota + 1
	ConstraintDiscriminator
	ConstraintSigner
	ConstraintWritable
	ConstraintExecutable
	ConstraintAddress
	ConstraintSeeds
	ConstraintRelation
)

func (k ConstraintKind) String() string {
	switch k {
	case ConstraintOwner:
		return "owner"
	case ConstraintDiscriminator:
		return "discriminator"
	case ConstraintSigner:
		return "signer"
	case ConstraintWritable:
		return "mut"
	case ConstraintExecutable:
		return "executable"
	case ConstraintAddress:
		return "address"
	case ConstraintSeeds:
		return "seeds"
	case ConstraintRelation:
		return "relation"
	default:
		return fmt.Sprintf("constraint(%d)", uint8(k))
	}
}

// RelationKind selects how a relation constraint compares two fields.
type RelationKind uint8

const (
	// RelationHasOne: 32 bytes at Offset in this account's data equal the
	// target's key.
	RelationHasOne RelationKind = iota + 1
	// RelationOwnedBy: this account's owner is the target's key.
	RelationOwnedBy
	// RelationCustom: Check decides.
	RelationCustom
)

// RelationFunc decides a custom relationship between a field and an earlier
// bound field.
type RelationFunc func(self, target *AccountInfo) bool

// Seed is one element of a derived-address seed list: either constant bytes
// or the key of an earlier bound field.
type Seed struct {
	Const []byte
	Field string
}

// SeedBytes is a constant seed.
func SeedBytes(b []byte) Seed { return Seed{Const: b} }

// SeedString is a constant UTF-8 seed.
func SeedString(s string) Seed { return Seed{Const: []byte(s)} }

// SeedKey uses the key of an earlier bound field as the seed.
func SeedKey(field string) Seed { return Seed{Field: field} }

// Constraint is a declarative check on one account. Schemas hold plain
// values so they can be inspected, printed and exported to an IDL.
type Constraint struct {
	Kind ConstraintKind

	// Key is the expected owner (ConstraintOwner) or address
	// (ConstraintAddress).
	Key types.Pubkey

	Discriminator codec.Discriminator

	Seeds []Seed
	// Bump asks for the canonical bump to be appended and recorded.
	Bump bool

	Relation RelationKind
	Target   string
	Offset   int
	Name     string
	Check    RelationFunc
}

// Owner requires the account's recorded owner to equal owner.
func Owner(owner types.Pubkey) Constraint {
	return Constraint{Kind: ConstraintOwner, Key: owner}
}

// Discriminator requires the account data to start with d.
func Discriminator(d codec.Discriminator) Constraint {
	return Constraint{Kind: ConstraintDiscriminator, Discriminator: d}
}

// Signer requires the signer flag.
func Signer() Constraint {
	return Constraint{Kind: ConstraintSigner}
}

// Mut requires the writable flag.
func Mut() Constraint {
	return Constraint{Kind: ConstraintWritable}
}

// Executable requires a program account.
func Executable() Constraint {
	return Constraint{Kind: ConstraintExecutable}
}

// Address requires the account identity to equal key.
func Address(key types.Pubkey) Constraint {
	return Constraint{Kind: ConstraintAddress, Key: key}
}

// Seeds requires the account identity to equal the address derived from
// seeds and the program identity. Chain WithBump to search for and record
// the canonical bump.
func Seeds(seeds ...Seed) Constraint {
	return Constraint{Kind: ConstraintSeeds, Seeds: seeds}
}

// WithBump appends the canonical bump to a seeds constraint.
func (c Constraint) WithBump() Constraint {
	c.Bump = true
	return c
}

// HasOne requires the 32 bytes at offset in this account's data to equal the
// key of the target field.
func HasOne(target string, offset int) Constraint {
	return Constraint{Kind: ConstraintRelation, Relation: RelationHasOne, Target: target, Offset: offset}
}

// OwnedBy requires this account to be owned by the target field's key.
func OwnedBy(target string) Constraint {
	return Constraint{Kind: ConstraintRelation, Relation: RelationOwnedBy, Target: target}
}

// Relation is a named custom relationship with an earlier field.
func Relation(target, name string, check RelationFunc) Constraint {
	return Constraint{Kind: ConstraintRelation, Relation: RelationCustom, Target: target, Name: name, Check: check}
}

// references returns the fields this constraint reads.
func (c Constraint) references() []string {
	var refs []string
	switch c.Kind {
	case ConstraintSeeds:
		for _, s := range c.Seeds {
			if s.Field != "" {
				refs = append(refs, s.Field)
			}
		}
	case ConstraintRelation:
		refs = append(refs, c.Target)
	}
	return refs
}

func (c Constraint) validate() error {
	switch c.Kind {
	case ConstraintOwner, ConstraintDiscriminator, ConstraintSigner, ConstraintWritable,
		ConstraintExecutable, ConstraintAddress:
		return nil
	case ConstraintSeeds:
		n := len(c.Seeds)
		if c.Bump {
			n++
		}
		if n > pda.MaxSeeds {
			return fmt.Errorf("%w: %d seeds", ErrInvalidConstraint, n)
		}
		for _, s := range c.Seeds {
			if s.Field == "" && len(s.Const) > pda.MaxSeedLen {
				return fmt.Errorf("%w: seed longer than %d bytes", ErrInvalidConstraint, pda.MaxSeedLen)
			}
		}
		return nil
	case ConstraintRelation:
		if c.Target == "" {
			return fmt.Errorf("%w: relation without target", ErrInvalidConstraint)
		}
		if c.Relation == RelationCustom && c.Check == nil {
			return fmt.Errorf("%w: custom relation %q without check", ErrInvalidConstraint, c.Name)
		}
		if c.Relation == RelationHasOne && c.Offset < 0 {
			return fmt.Errorf("%w: negative has_one offset", ErrInvalidConstraint)
		}
		return nil
	default:
		return fmt.Errorf("%w: kind %d", ErrInvalidConstraint, c.Kind)
	}
}

// AccountType describes program-owned typed state: the owning program and
// the discriminator in front of the serialized state.
type AccountType struct {
	Name          string
	Owner         types.Pubkey
	Discriminator codec.Discriminator
}

// NewAccountType derives the discriminator from name.
func NewAccountType(name string, owner types.Pubkey) AccountType {
	return AccountType{Name: name, Owner: owner, Discriminator: codec.AccountDiscriminator(name)}
}

// Field is one declared account slot of an instruction.
type Field struct {
	Name        string
	Type        *AccountType
	Constraints []Constraint
}

// AccountField declares an account checked only by the given constraints.
func AccountField(name string, constraints ...Constraint) Field {
	return Field{Name: name, Constraints: constraints}
}

// SignerField declares an account that must sign. The signer check runs
// before the extra constraints.
func SignerField(name string, constraints ...Constraint) Field {
	return Field{Name: name, Constraints: append([]Constraint{Signer()}, constraints...)}
}

// StateField declares typed program state: owner and discriminator checks
// run first, then the extra constraints.
func StateField(name string, typ AccountType, constraints ...Constraint) Field {
	cs := append([]Constraint{Owner(typ.Owner), Discriminator(typ.Discriminator)}, constraints...)
	return Field{Name: name, Type: &typ, Constraints: cs}
}

// ProgramField declares a program account with a fixed identity.
func ProgramField(name string, id types.Pubkey) Field {
	return Field{Name: name, Constraints: []Constraint{Address(id), Executable()}}
}

// Has reports whether the field declares a constraint of the given kind.
func (f Field) Has(kind ConstraintKind) bool {
	for _, c := range f.Constraints {
		if c.Kind == kind {
			return true
		}
	}
	return false
}

// Schema is the ordered account list an instruction requires. Order is
// positional: the i-th supplied account binds to the i-th field.
type Schema struct {
	Fields []Field
}

// NewSchema builds a schema from fields in positional order.
func NewSchema(fields ...Field) Schema {
	return Schema{Fields: fields}
}

// Len returns the declared arity.
func (s Schema) Len() int {
	return len(s.Fields)
}

// Validate rejects duplicate field names, malformed constraints and any
// constraint that reads a field declared at or after its own position.
func (s Schema) Validate() error {
	seen := make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: field %d has no name", ErrInvalidConstraint, i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateField, f.Name)
		}
		for _, c := range f.Constraints {
			if err := c.validate(); err != nil {
				return fmt.Errorf("field %q: %w", f.Name, err)
			}
			for _, ref := range c.references() {
				if _, ok := seen[ref]; !ok {
					return fmt.Errorf("%w: %q %s reads %q", ErrForwardReference, f.Name, c.Kind, ref)
				}
			}
		}
		seen[f.Name] = i
	}
	return nil
}
