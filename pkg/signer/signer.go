// Package signer derives sr25519 key pairs from secret URIs and signs
// payloads with them. It holds no network state.
package signer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"golang.org/x/crypto/blake2b"
)

// DefaultNetwork is the generic Substrate SS58 address format.
const DefaultNetwork uint8 = 42

var ErrInvalidSeed = errors.New("invalid seed")

// InvalidSeedError is returned when a secret does not parse as a supported
// derivation URI, hex seed or mnemonic phrase.
type InvalidSeedError struct {
	Reason string
	Err    error
}

func (e *InvalidSeedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid seed: %s: %v", e.Reason, e.Err)
	}
	return "invalid seed: " + e.Reason
}

func (e *InvalidSeedError) Unwrap() error        { return e.Err }
func (e *InvalidSeedError) Is(target error) bool { return target == ErrInvalidSeed }

// devSeeds are the well-known development accounts of every Substrate dev chain.
var devSeeds = map[string]struct{}{
	"//Alice": {}, "//Bob": {}, "//Charlie": {}, "//Dave": {}, "//Eve": {}, "//Ferdie": {},
	"//Alice//stash": {}, "//Bob//stash": {},
}

var (
	devAccountsOnce sync.Once
	devAccounts     map[string]struct{}
)

// isDevAccount reports whether publicKey belongs to a development account,
// however its seed was spelled.
func isDevAccount(publicKey []byte) bool {
	devAccountsOnce.Do(func() {
		devAccounts = make(map[string]struct{}, len(devSeeds))
		for seed := range devSeeds {
			pair, err := signature.KeyringPairFromSecret(seed, DefaultNetwork)
			if err != nil {
				continue
			}
			devAccounts[string(pair.PublicKey)] = struct{}{}
		}
	})
	_, ok := devAccounts[string(publicKey)]
	return ok
}

// Secret holds seed material. Call Wipe once it is no longer needed.
type Secret []byte

// ReadSecret reads the first line of r as a secret.
func ReadSecret(r io.Reader) (Secret, error) {
	reader := bufio.NewReader(r)
	line, err := reader.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	secret := Secret(trimSpace(line))
	for i := range line[len(secret):] {
		line[len(secret)+i] = 0
	}
	if len(secret) == 0 {
		return nil, &InvalidSeedError{Reason: "empty secret"}
	}
	return secret, nil
}

// Wipe zeroes the secret in place.
func (s Secret) Wipe() {
	for i := range s {
		s[i] = 0
	}
}

// IsDev reports whether s is one of the well-known development seeds.
func (s Secret) IsDev() bool {
	_, ok := devSeeds[string(s)]
	return ok
}

// KeyPair is an sr25519 key pair derived from a Secret.
type KeyPair struct {
	secret    Secret
	PublicKey []byte
	Address   string
}

type options struct {
	network       uint8
	allowDevSeeds bool
}

type Option func(*options)

// WithNetwork sets the SS58 network prefix used to render the address.
func WithNetwork(network uint8) Option {
	return func(o *options) { o.network = network }
}

// WithDevSeeds allows the well-known development seeds. Meant for tests and
// local dev chains only.
func WithDevSeeds() Option {
	return func(o *options) { o.allowDevSeeds = true }
}

// DeriveKeyPair derives an sr25519 key pair from secret. The key pair keeps
// its own copy of the secret, so the caller may wipe secret afterwards.
func DeriveKeyPair(secret Secret, opts ...Option) (*KeyPair, error) {
	o := options{network: DefaultNetwork}
	for _, opt := range opts {
		opt(&o)
	}
	if len(secret) == 0 {
		return nil, &InvalidSeedError{Reason: "empty secret"}
	}
	if strings.ContainsAny(string(secret), "\r\n") {
		return nil, &InvalidSeedError{Reason: "secret spans multiple lines"}
	}
	pair, err := signature.KeyringPairFromSecret(string(secret), o.network)
	if err != nil {
		return nil, &InvalidSeedError{Reason: "failed to derive key pair", Err: err}
	}
	if !o.allowDevSeeds && isDevAccount(pair.PublicKey) {
		return nil, &InvalidSeedError{Reason: "development accounts are not allowed"}
	}
	return &KeyPair{
		secret:    append(Secret(nil), secret...),
		PublicKey: pair.PublicKey,
		Address:   pair.Address,
	}, nil
}

// Wipe discards the key material. The pair cannot sign afterwards.
func (kp *KeyPair) Wipe() {
	if kp == nil {
		return
	}
	kp.secret.Wipe()
	kp.secret = nil
}

// Sign signs payload with kp. Payloads longer than 256 bytes are hashed
// with blake2b-256 before signing, as Substrate does for extrinsic payloads.
func Sign(payload []byte, kp *KeyPair) ([]byte, error) {
	if kp == nil || len(kp.secret) == 0 {
		return nil, errors.New("key pair has been wiped")
	}
	sig, err := signature.Sign(signingPayload(payload), string(kp.secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}
	return sig, nil
}

// Verify checks sig over payload against kp.
func Verify(payload, sig []byte, kp *KeyPair) (bool, error) {
	if kp == nil || len(kp.secret) == 0 {
		return false, errors.New("key pair has been wiped")
	}
	return signature.Verify(signingPayload(payload), sig, string(kp.secret))
}

func signingPayload(payload []byte) []byte {
	if len(payload) > 256 {
		h := blake2b.Sum256(payload)
		return h[:]
	}
	return payload
}

func trimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	// Shift in place so the caller can zero the tail.
	n := copy(b, b[start:end])
	return b[:n]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
