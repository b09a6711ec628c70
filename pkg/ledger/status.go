package ledger

import (
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// TxStatus is the lifecycle status of a submitted extrinsic.
type TxStatus int

const (
	StatusSubmitted TxStatus = iota
	StatusInBlock
	StatusFinalized
	StatusRetracted
	StatusDropped
	StatusInvalid
	StatusUsurped
	StatusFinalityTimeout
)

func (s TxStatus) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusInBlock:
		return "in_block"
	case StatusFinalized:
		return "finalized"
	case StatusRetracted:
		return "retracted"
	case StatusDropped:
		return "dropped"
	case StatusInvalid:
		return "invalid"
	case StatusUsurped:
		return "usurped"
	case StatusFinalityTimeout:
		return "finality_timeout"
	default:
		return "unknown"
	}
}

// Included reports whether s means the extrinsic is part of a block.
func (s TxStatus) Included() bool {
	return s == StatusInBlock || s == StatusFinalized
}

// Failed reports whether s ends the extrinsic's lifecycle without inclusion.
func (s TxStatus) Failed() bool {
	switch s {
	case StatusDropped, StatusInvalid, StatusUsurped, StatusFinalityTimeout:
		return true
	}
	return false
}

// Consumed reports whether a failing s still used up the extrinsic's nonce.
func (s TxStatus) Consumed() bool {
	return s == StatusUsurped || s == StatusFinalityTimeout
}

// statusOf maps a node status notification onto a TxStatus and, for
// inclusion statuses, the hash of the including block.
func statusOf(st types.ExtrinsicStatus) (TxStatus, types.Hash) {
	switch {
	case st.IsInBlock:
		return StatusInBlock, st.AsInBlock
	case st.IsFinalized:
		return StatusFinalized, st.AsFinalized
	case st.IsRetracted:
		return StatusRetracted, st.AsRetracted
	case st.IsDropped:
		return StatusDropped, types.Hash{}
	case st.IsInvalid:
		return StatusInvalid, types.Hash{}
	case st.IsUsurped:
		return StatusUsurped, st.AsUsurped
	case st.IsFinalityTimeout:
		return StatusFinalityTimeout, st.AsFinalityTimeout
	default:
		// Future, Ready and Broadcast.
		return StatusSubmitted, types.Hash{}
	}
}
