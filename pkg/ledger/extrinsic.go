package ledger

import (
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"golang.org/x/crypto/blake2b"

	"github.com/centrifuge/claims-migration/pkg/signer"
)

// signExtrinsic builds an immortal v4 extrinsic for call and signs its
// payload with kp.
func (c *Client) signExtrinsic(call types.Call, kp *signer.KeyPair, nonce uint32) (types.Extrinsic, error) {
	method, err := codec.Encode(call)
	if err != nil {
		return types.Extrinsic{}, fmt.Errorf("failed to encode call: %w", err)
	}
	era := types.ExtrinsicEra{IsImmortalEra: true}
	payload := types.ExtrinsicPayloadV4{
		ExtrinsicPayloadV3: types.ExtrinsicPayloadV3{
			Method:      method,
			Era:         era,
			Nonce:       types.NewUCompactFromUInt(uint64(nonce)),
			Tip:         types.NewUCompactFromUInt(0),
			SpecVersion: c.runtime.SpecVersion,
			GenesisHash: c.genesis,
			BlockHash:   c.genesis,
		},
		TransactionVersion: c.runtime.TransactionVersion,
	}
	encoded, err := codec.Encode(payload)
	if err != nil {
		return types.Extrinsic{}, fmt.Errorf("failed to encode signing payload: %w", err)
	}
	sig, err := signer.Sign(encoded, kp)
	if err != nil {
		return types.Extrinsic{}, err
	}
	address, err := types.NewMultiAddressFromAccountID(kp.PublicKey)
	if err != nil {
		return types.Extrinsic{}, fmt.Errorf("failed to encode signer address: %w", err)
	}

	xt := types.NewExtrinsic(call)
	xt.Signature = types.ExtrinsicSignatureV4{
		Signer:    address,
		Signature: types.MultiSignature{IsSr25519: true, AsSr25519: types.NewSignature(sig)},
		Era:       era,
		Nonce:     payload.Nonce,
		Tip:       payload.Tip,
	}
	xt.Version |= types.ExtrinsicBitSigned
	return xt, nil
}

// extrinsicHash is the blake2b-256 hash of the encoded extrinsic, the
// identifier nodes and explorers use for it.
func extrinsicHash(xt types.Extrinsic) (types.Hash, error) {
	encoded, err := codec.Encode(xt)
	if err != nil {
		return types.Hash{}, fmt.Errorf("failed to encode extrinsic: %w", err)
	}
	return types.Hash(blake2b.Sum256(encoded)), nil
}
