package auth

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/autom8ter/pathfinder/graph"
)

var (
	// ErrBadSignature is returned when a signature is malformed or does not recover to a key.
	ErrBadSignature = errors.New("auth: bad signature")
	// ErrCallerMismatch is returned when the signature recovers to an identity other than the claimed caller.
	ErrCallerMismatch = errors.New("auth: signature does not match caller")
	// ErrStaleRequest is returned when a request timestamp falls outside the allowed clock skew.
	ErrStaleRequest = errors.New("auth: request timestamp outside allowed skew")
	// ErrReplayedRequest is returned when a caller's request timestamp is not newer than the last one accepted.
	ErrReplayedRequest = errors.New("auth: request already used")
)

// DefaultMaxSkew is the default tolerance between a request's timestamp and the verifier's clock.
const DefaultMaxSkew = 5 * time.Minute

// RouteIntent is the signed payload of an add-route request. Timestamp is in Unix milliseconds and must
// increase with every request a caller sends.
type RouteIntent struct {
	From      graph.Node
	To        graph.Node
	Cost      graph.Cost
	Timestamp int64
}

// Message is the text the caller signs.
func (r RouteIntent) Message() []byte {
	return []byte(fmt.Sprintf("pathfinder:add_route:%d:%d:%s:%d", r.From, r.To, r.Cost.String(), r.Timestamp))
}

// Hash is the EIP-191 personal message hash of Message.
func (r RouteIntent) Hash() []byte {
	return accounts.TextHash(r.Message())
}

// Signer signs route intents with a secp256k1 key.
type Signer struct {
	key *ecdsa.PrivateKey
}

// NewSigner wraps an existing private key.
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key}
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "auth: generate key")
	}
	return &Signer{key: key}, nil
}

// LoadSigner parses a hex encoded private key, with or without a 0x prefix.
func LoadSigner(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "auth: load key")
	}
	return &Signer{key: key}, nil
}

// Identity returns the address of the signer's public key.
func (s *Signer) Identity() Identity {
	return Identity(crypto.PubkeyToAddress(s.key.PublicKey))
}

// HexKey returns the hex encoded private key.
func (s *Signer) HexKey() string {
	return hex.EncodeToString(crypto.FromECDSA(s.key))
}

// Sign returns a 65 byte [R || S || V] signature over the intent's hash.
func (s *Signer) Sign(intent RouteIntent) ([]byte, error) {
	sig, err := crypto.Sign(intent.Hash(), s.key)
	if err != nil {
		return nil, errors.Wrap(err, "auth: sign")
	}
	return sig, nil
}

// Verifier authenticates signed route intents.
type Verifier struct {
	maxSkew time.Duration
	now     func() time.Time
}

// VerifierOpt configures a Verifier.
type VerifierOpt func(v *Verifier)

// WithMaxSkew sets the allowed clock skew. Zero disables the timestamp check.
func WithMaxSkew(skew time.Duration) VerifierOpt {
	return func(v *Verifier) {
		v.maxSkew = skew
	}
}

// WithClock overrides the verifier's clock.
func WithClock(now func() time.Time) VerifierOpt {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier returns a verifier using DefaultMaxSkew unless overridden.
func NewVerifier(opts ...VerifierOpt) *Verifier {
	v := &Verifier{
		maxSkew: DefaultMaxSkew,
		now:     time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Verify checks that sig is claimed's signature over intent and returns the authenticated identity.
func (v *Verifier) Verify(intent RouteIntent, claimed Identity, sig []byte) (Identity, error) {
	if v.maxSkew > 0 {
		drift := v.now().Sub(time.UnixMilli(intent.Timestamp))
		if drift < 0 {
			drift = -drift
		}
		if drift > v.maxSkew {
			return Identity{}, errors.Wrapf(ErrStaleRequest, "drift %s", drift)
		}
	}
	if len(sig) != crypto.SignatureLength {
		return Identity{}, errors.Wrapf(ErrBadSignature, "expected %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(intent.Hash(), normalized)
	if err != nil {
		return Identity{}, errors.Wrap(ErrBadSignature, err.Error())
	}
	signer := Identity(crypto.PubkeyToAddress(*pub))
	if signer != claimed {
		return Identity{}, errors.Wrapf(ErrCallerMismatch, "claimed %s, signed by %s", claimed, signer)
	}
	return signer, nil
}
