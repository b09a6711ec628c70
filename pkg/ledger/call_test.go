package ledger

import (
	"errors"
	"testing"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/stretchr/testify/require"
)

func TestCallTable(t *testing.T) {
	table, err := newCallTable(testMetadata())
	require.NoError(t, err)

	name, ok := table.lookup(types.CallIndex{SectionIndex: 12, MethodIndex: 1})
	require.True(t, ok)
	require.Equal(t, callName{module: "RadClaims", method: "store_root_hash", args: 1}, name)

	_, ok = table.lookup(types.CallIndex{SectionIndex: 99, MethodIndex: 0})
	require.False(t, ok)

	_, err = newCallTable(&types.Metadata{Version: 9})
	require.Error(t, err)
}

func TestEncodeCall(t *testing.T) {
	table, err := newCallTable(testMetadata())
	require.NoError(t, err)

	call, err := table.encode(Sudo(SetStorage(StorageItem{Key: []byte{0xaa}, Value: []byte{0xbb, 0xcc}})))
	require.NoError(t, err)
	require.Equal(t, types.CallIndex{SectionIndex: 7, MethodIndex: 0}, call.CallIndex)
	require.Equal(t, []byte{
		0x00, 0x01, // System.set_storage
		0x04,       // one item
		0x04, 0xaa, // key
		0x08, 0xbb, 0xcc, // value
	}, []byte(call.Args))

	_, err = table.encode(Call{Module: "Sudo", Method: "set_key"})
	require.Error(t, err)
}

func TestFixedArg(t *testing.T) {
	digest := make([]byte, 32)
	digest[31] = 0x01
	xt := Extrinsic{Module: "RadClaims", Method: "store_root_hash", ArgCount: 1, Args: digest}

	got, err := xt.FixedArg(32)
	require.NoError(t, err)
	require.Equal(t, digest, got)

	short := xt
	short.Args = digest[:20]
	_, err = short.FixedArg(32)
	require.True(t, errors.Is(err, ErrDecode))

	long := xt
	long.Args = append(digest, 0x00)
	_, err = long.FixedArg(32)
	require.True(t, errors.Is(err, ErrDecode))

	// With more declared arguments only the prefix is read.
	multi := long
	multi.ArgCount = 2
	got, err = multi.FixedArg(32)
	require.NoError(t, err)
	require.Equal(t, digest, got)
}

func TestStatusOf(t *testing.T) {
	for _, tc := range []struct {
		update types.ExtrinsicStatus
		want   TxStatus
	}{
		{types.ExtrinsicStatus{IsFuture: true}, StatusSubmitted},
		{types.ExtrinsicStatus{IsReady: true}, StatusSubmitted},
		{types.ExtrinsicStatus{IsInBlock: true}, StatusInBlock},
		{types.ExtrinsicStatus{IsFinalized: true}, StatusFinalized},
		{types.ExtrinsicStatus{IsDropped: true}, StatusDropped},
		{types.ExtrinsicStatus{IsInvalid: true}, StatusInvalid},
		{types.ExtrinsicStatus{IsUsurped: true}, StatusUsurped},
		{types.ExtrinsicStatus{IsFinalityTimeout: true}, StatusFinalityTimeout},
	} {
		got, _ := statusOf(tc.update)
		require.Equal(t, tc.want, got)
	}
	require.True(t, StatusInBlock.Included())
	require.True(t, StatusInvalid.Failed())
	require.False(t, StatusRetracted.Failed())
	require.True(t, StatusUsurped.Consumed())
	require.False(t, StatusInvalid.Consumed())
	require.False(t, StatusDropped.Consumed())
}
