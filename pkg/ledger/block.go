package ledger

import (
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Block is a block fetched from a node. Its extrinsics keep block order and
// must not be modified.
type Block struct {
	Number     uint64
	Hash       types.Hash
	Extrinsics []Extrinsic
}

// Extrinsic is one entry of a block, identified by module and method.
type Extrinsic struct {
	Index     int
	CallIndex types.CallIndex
	Module    string
	Method    string
	ArgCount  int
	Args      Args

	// Signer is the public key of the signing account, nil for inherents
	// and unsigned extrinsics.
	Signer []byte
}

// Is reports whether e calls module.method.
func (e Extrinsic) Is(module, method string) bool {
	return e.Module == module && e.Method == method
}

// FixedArg decodes the first argument of e as a fixed-length byte value.
func (e Extrinsic) FixedArg(size int) ([]byte, error) {
	if e.ArgCount == 1 && len(e.Args) != size {
		return nil, &DecodeError{What: e.Module + "." + e.Method + " argument", Want: size, Got: len(e.Args)}
	}
	return e.Args.Fixed(size)
}

// Args is the SCALE-encoded argument list of a call, decoded on demand.
type Args []byte

// Fixed returns the first size bytes of a.
func (a Args) Fixed(size int) ([]byte, error) {
	if size <= 0 || len(a) < size {
		return nil, &DecodeError{What: "argument", Want: size, Got: len(a)}
	}
	return append([]byte(nil), a[:size]...), nil
}

func (a Args) String() string {
	return hexutil.Encode(a)
}
