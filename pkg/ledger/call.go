package ledger

import (
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
)

// Call is a runtime call addressed by name. Args are SCALE-encoded in order
// when the call is submitted; a Call argument encodes as a nested call.
type Call struct {
	Module string
	Method string
	Args   []interface{}
}

func (c Call) String() string {
	return c.Module + "." + c.Method
}

// StorageItem is a raw key/value pair written by System.set_storage. Both
// fields encode as length-prefixed byte vectors.
type StorageItem struct {
	Key   []byte
	Value []byte
}

// SetStorage returns a System.set_storage call writing items.
func SetStorage(items ...StorageItem) Call {
	return Call{Module: "System", Method: "set_storage", Args: []interface{}{items}}
}

// Sudo wraps inner in a Sudo.sudo call, dispatched with root origin.
func Sudo(inner Call) Call {
	return Call{Module: "Sudo", Method: "sudo", Args: []interface{}{inner}}
}

type callName struct {
	module string
	method string
	args   int
}

// callTable maps call indices to names for one runtime version.
type callTable struct {
	byIndex map[types.CallIndex]callName
	byName  map[string]types.CallIndex
}

func newCallTable(meta *types.Metadata) (*callTable, error) {
	t := &callTable{
		byIndex: map[types.CallIndex]callName{},
		byName:  map[string]types.CallIndex{},
	}
	switch meta.Version {
	case 13:
		for _, mod := range meta.AsMetadataV13.Modules {
			if !mod.HasCalls {
				continue
			}
			for i, fn := range mod.Calls {
				t.add(
					types.CallIndex{SectionIndex: uint8(mod.Index), MethodIndex: uint8(i)},
					callName{module: string(mod.Name), method: string(fn.Name), args: len(fn.Args)},
				)
			}
		}
	case 14:
		variants := map[int64][]types.Si1Variant{}
		for _, typ := range meta.AsMetadataV14.Lookup.Types {
			if typ.Type.Def.IsVariant {
				variants[typ.ID.Int64()] = typ.Type.Def.Variant.Variants
			}
		}
		for _, pallet := range meta.AsMetadataV14.Pallets {
			if !pallet.HasCalls {
				continue
			}
			for _, v := range variants[pallet.Calls.Type.Int64()] {
				t.add(
					types.CallIndex{SectionIndex: uint8(pallet.Index), MethodIndex: uint8(v.Index)},
					callName{module: string(pallet.Name), method: string(v.Name), args: len(v.Fields)},
				)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported metadata version %d", meta.Version)
	}
	return t, nil
}

func (t *callTable) add(idx types.CallIndex, name callName) {
	t.byIndex[idx] = name
	t.byName[name.module+"."+name.method] = idx
}

func (t *callTable) lookup(idx types.CallIndex) (callName, bool) {
	name, ok := t.byIndex[idx]
	return name, ok
}

// encode resolves c against the table and SCALE-encodes its arguments.
func (t *callTable) encode(c Call) (types.Call, error) {
	idx, ok := t.byName[c.String()]
	if !ok {
		return types.Call{}, fmt.Errorf("call %s not found in metadata", c)
	}
	var args []byte
	for i, arg := range c.Args {
		if inner, ok := arg.(Call); ok {
			encoded, err := t.encode(inner)
			if err != nil {
				return types.Call{}, err
			}
			arg = encoded
		}
		b, err := codec.Encode(arg)
		if err != nil {
			return types.Call{}, fmt.Errorf("failed to encode argument %d of %s: %w", i, c, err)
		}
		args = append(args, b...)
	}
	return types.Call{CallIndex: idx, Args: args}, nil
}
