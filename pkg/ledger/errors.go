package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrConnection        = errors.New("connection failed")
	ErrBlockNotFound     = errors.New("block not found")
	ErrRPC               = errors.New("rpc failed")
	ErrDecode            = errors.New("decode failed")
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrDisconnected is returned, wrapped in an RpcError, by every call on a
	// client that has been disconnected.
	ErrDisconnected = errors.New("client is disconnected")
)

// ConnectionError is returned when the websocket handshake with a node fails.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error        { return e.Err }
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// BlockNotFoundError is returned for block numbers above the finalized height.
type BlockNotFoundError struct {
	Number    uint64
	Finalized uint64
}

func (e *BlockNotFoundError) Error() string {
	return fmt.Sprintf("block %d not found (finalized height is %d)", e.Number, e.Finalized)
}

func (e *BlockNotFoundError) Is(target error) bool { return target == ErrBlockNotFound }

// RpcError is returned when a call fails in transport or times out.
type RpcError struct {
	Method string
	Err    error
}

func (e *RpcError) Error() string {
	return fmt.Sprintf("rpc %s failed: %v", e.Method, e.Err)
}

func (e *RpcError) Unwrap() error        { return e.Err }
func (e *RpcError) Is(target error) bool { return target == ErrRPC }

// DecodeError is returned when a raw value does not have the expected size.
type DecodeError struct {
	What string
	Want int
	Got  int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: want %d bytes, got %d", e.What, e.Want, e.Got)
}

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// TransactionFailedError carries the status which ended a submission.
type TransactionFailedError struct {
	Status TxStatus
	Nonce  uint32
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("transaction with nonce %d ended as %s", e.Nonce, e.Status)
}

func (e *TransactionFailedError) Is(target error) bool { return target == ErrTransactionFailed }
