package signer

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	devPhrase      = "bottom drive obey lake curtain smoke basket hold race lonely fit walk"
	aliceAddress   = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	alicePublicKey = "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"
)

func TestDeriveKeyPair(t *testing.T) {
	kp, err := DeriveKeyPair(Secret("//Alice"), WithDevSeeds())
	require.NoError(t, err)
	require.Equal(t, aliceAddress, kp.Address)
	require.Equal(t, alicePublicKey, hex.EncodeToString(kp.PublicKey))
}

func TestDeriveKeyPairRejectsDevSeeds(t *testing.T) {
	for _, secret := range []string{
		"//Alice",
		"//Bob//stash",
		devPhrase + "//Alice",
		"0xe5be9a5092b81bca64be81d212e7f2f9eba183bb7a90954f7b76361f6edb5c0a",
	} {
		_, err := DeriveKeyPair(Secret(secret))
		require.True(t, errors.Is(err, ErrInvalidSeed), "secret %q", secret)

		kp, err := DeriveKeyPair(Secret(secret), WithDevSeeds())
		require.NoError(t, err, "secret %q", secret)
		require.True(t, isDevAccount(kp.PublicKey))
	}

	// The dev phrase without a derivation path is not a dev account.
	kp, err := DeriveKeyPair(Secret(devPhrase))
	require.NoError(t, err)
	require.False(t, isDevAccount(kp.PublicKey))
}

func TestDeriveKeyPairNetwork(t *testing.T) {
	kp, err := DeriveKeyPair(Secret("//Alice"), WithDevSeeds(), WithNetwork(36))
	require.NoError(t, err)
	require.Equal(t, alicePublicKey, hex.EncodeToString(kp.PublicKey))
	require.NotEqual(t, aliceAddress, kp.Address)
}

func TestDeriveKeyPairInvalid(t *testing.T) {
	for _, secret := range []string{"", "definitely not a valid mnemonic phrase", "//Alice\n//Bob"} {
		_, err := DeriveKeyPair(Secret(secret), WithDevSeeds())
		require.Error(t, err, "secret %q", secret)

		var seedErr *InvalidSeedError
		require.True(t, errors.As(err, &seedErr), "secret %q", secret)
	}
}

func TestDeriveKeyPairCopiesSecret(t *testing.T) {
	secret := Secret("//Bob")
	kp, err := DeriveKeyPair(secret, WithDevSeeds())
	require.NoError(t, err)
	secret.Wipe()

	sig, err := Sign([]byte("payload"), kp)
	require.NoError(t, err)
	ok, err := Verify([]byte("payload"), sig, kp)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSignAndVerify(t *testing.T) {
	kp, err := DeriveKeyPair(Secret("//Alice"), WithDevSeeds())
	require.NoError(t, err)

	for _, payload := range [][]byte{
		[]byte("short payload"),
		bytes.Repeat([]byte{0xab}, 300), // hashed before signing
	} {
		sig, err := Sign(payload, kp)
		require.NoError(t, err)
		require.Len(t, sig, 64)

		ok, err := Verify(payload, sig, kp)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = Verify(append(payload, 0x00), sig, kp)
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestWipe(t *testing.T) {
	kp, err := DeriveKeyPair(Secret("//Alice"), WithDevSeeds())
	require.NoError(t, err)
	kp.Wipe()
	kp.Wipe()

	_, err = Sign([]byte("payload"), kp)
	require.Error(t, err)

	secret := Secret("//Alice")
	secret.Wipe()
	require.Equal(t, Secret(make([]byte, 7)), secret)
}

func TestReadSecret(t *testing.T) {
	secret, err := ReadSecret(strings.NewReader("  //Alice  \nignored\n"))
	require.NoError(t, err)
	require.Equal(t, Secret("//Alice"), secret)
	require.True(t, secret.IsDev())

	_, err = ReadSecret(strings.NewReader("\n"))
	require.True(t, errors.Is(err, ErrInvalidSeed))
}
