package anchor

import (
	"encoding/json"
	"reflect"
	"strings"
	"unicode"

	"github.com/fortiblox/x1-anchor/pkg/types"
)

// IDL is the interface description clients use to build payloads for a
// program.
type IDL struct {
	Address      string           `json:"address"`
	Metadata     IDLMetadata      `json:"metadata"`
	Instructions []IDLInstruction `json:"instructions"`
	Accounts     []IDLAccount     `json:"accounts,omitempty"`
	Types        []IDLTypeDef     `json:"types,omitempty"`
}

// IDLMetadata identifies the program.
type IDLMetadata struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Spec        string `json:"spec"`
	Description string `json:"description,omitempty"`
}

// IDLInstruction describes one entry point.
type IDLInstruction struct {
	Name          string           `json:"name"`
	Discriminator []int            `json:"discriminator"`
	Accounts      []IDLAccountItem `json:"accounts"`
	Args          []IDLField       `json:"args"`
}

// IDLAccountItem is one schema field as clients see it.
type IDLAccountItem struct {
	Name     string `json:"name"`
	Writable bool   `json:"writable,omitempty"`
	Signer   bool   `json:"signer,omitempty"`
	Address  string `json:"address,omitempty"`
}

// IDLAccount names a typed state kind and its discriminator.
type IDLAccount struct {
	Name          string `json:"name"`
	Discriminator []int  `json:"discriminator"`
}

// IDLField is a named argument or struct member.
type IDLField struct {
	Name string      `json:"name"`
	Type interface{} `json:"type"`
}

// IDLTypeDef describes a struct used by some argument.
type IDLTypeDef struct {
	Name string      `json:"name"`
	Type IDLTypeBody `json:"type"`
}

// IDLTypeBody is the body of a struct type definition.
type IDLTypeBody struct {
	Kind   string     `json:"kind"`
	Fields []IDLField `json:"fields"`
}

// IDLSpecVersion is the IDL format version written into metadata.
const IDLSpecVersion = "0.1.0"

// IDL describes the program.
func (p *Program) IDL() *IDL {
	idl := &IDL{
		Address: p.id.String(),
		Metadata: IDLMetadata{
			Name:        p.name,
			Version:     p.version,
			Spec:        IDLSpecVersion,
			Description: "Created with Anchor",
		},
		Instructions: []IDLInstruction{},
	}

	defs := &typeDefs{seen: make(map[reflect.Type]bool)}
	for _, ix := range p.Instructions() {
		entry := IDLInstruction{
			Name:          ix.Name,
			Discriminator: ix.Discriminator.Ints(),
			Accounts:      []IDLAccountItem{},
			Args:          []IDLField{},
		}
		for _, f := range ix.Schema.Fields {
			item := IDLAccountItem{
				Name:     f.Name,
				Writable: f.Has(ConstraintWritable),
				Signer:   f.Has(ConstraintSigner),
			}
			for _, c := range f.Constraints {
				if c.Kind == ConstraintAddress {
					item.Address = c.Key.String()
				}
			}
			entry.Accounts = append(entry.Accounts, item)
		}
		if t := ix.ArgType(); t != nil {
			entry.Args = defs.fields(t)
		}
		idl.Instructions = append(idl.Instructions, entry)
	}

	for _, t := range p.AccountTypes() {
		idl.Accounts = append(idl.Accounts, IDLAccount{Name: t.Name, Discriminator: t.Discriminator.Ints()})
	}
	idl.Types = defs.list
	return idl
}

// JSON renders the IDL the way it is published.
func (i *IDL) JSON() ([]byte, error) {
	return json.MarshalIndent(i, "", "  ")
}

var pubkeyType = reflect.TypeOf(types.Pubkey{})

type typeDefs struct {
	seen map[reflect.Type]bool
	list []IDLTypeDef
}

func (d *typeDefs) fields(t reflect.Type) []IDLField {
	out := []IDLField{}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() || sf.Tag.Get("bin") == "-" {
			continue
		}
		out = append(out, IDLField{Name: snakeCase(sf.Name), Type: d.typeOf(sf.Type)})
	}
	return out
}

func (d *typeDefs) typeOf(t reflect.Type) interface{} {
	if t == pubkeyType {
		return "pubkey"
	}
	switch t.Kind() {
	case reflect.Bool:
		return "bool"
	case reflect.Uint8:
		return "u8"
	case reflect.Uint16:
		return "u16"
	case reflect.Uint32:
		return "u32"
	case reflect.Uint64:
		return "u64"
	case reflect.Int8:
		return "i8"
	case reflect.Int16:
		return "i16"
	case reflect.Int32:
		return "i32"
	case reflect.Int64:
		return "i64"
	case reflect.Float32:
		return "f32"
	case reflect.Float64:
		return "f64"
	case reflect.String:
		return "string"
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "bytes"
		}
		return map[string]interface{}{"vec": d.typeOf(t.Elem())}
	case reflect.Array:
		return map[string]interface{}{"array": []interface{}{d.typeOf(t.Elem()), t.Len()}}
	case reflect.Ptr:
		return map[string]interface{}{"option": d.typeOf(t.Elem())}
	case reflect.Struct:
		if !d.seen[t] {
			d.seen[t] = true
			d.list = append(d.list, IDLTypeDef{
				Name: t.Name(),
				Type: IDLTypeBody{Kind: "struct", Fields: d.fields(t)},
			})
		}
		return map[string]interface{}{"defined": map[string]string{"name": t.Name()}}
	default:
		return t.String()
	}
}

// snakeCase converts a Go field name: NewOwner -> new_owner, ID -> id.
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && !unicode.IsUpper(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || (nextLower && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
