package keys

import (
	"crypto/ed25519"
	"strings"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-varint"

	"vey.dev/pidcore/errs"
)

// ed25519PubCodec is the multicodec code for an Ed25519 public key.
const ed25519PubCodec = 0xed

// EncodeMultibaseKey returns the publicKeyMultibase form of an Ed25519 key:
// base58btc("z") over the varint multicodec prefix and the raw key.
func EncodeMultibaseKey(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", errs.New(errs.Crypto, "KEY-MB-001", "invalid ed25519 public key length")
	}
	buf := append(varint.ToUvarint(ed25519PubCodec), pub...)
	return multibase.Encode(multibase.Base58BTC, buf)
}

// DecodeMultibaseKey is the inverse of EncodeMultibaseKey.
func DecodeMultibaseKey(s string) (ed25519.PublicKey, error) {
	enc, data, err := multibase.Decode(s)
	if err != nil {
		return nil, errs.Wrap(errs.Crypto, "KEY-MB-002", "invalid multibase key", err)
	}
	if enc != multibase.Base58BTC {
		return nil, errs.New(errs.Crypto, "KEY-MB-003", "multibase key must be base58btc")
	}
	code, n, err := varint.FromUvarint(data)
	if err != nil {
		return nil, errs.Wrap(errs.Crypto, "KEY-MB-004", "invalid multicodec prefix", err)
	}
	if code != ed25519PubCodec {
		return nil, errs.New(errs.Crypto, "KEY-MB-005", "multibase key is not ed25519-pub")
	}
	raw := data[n:]
	if len(raw) != ed25519.PublicKeySize {
		return nil, errs.New(errs.Crypto, "KEY-MB-001", "invalid ed25519 public key length")
	}
	return ed25519.PublicKey(raw), nil
}

// DIDKey returns the did:key identifier for an Ed25519 key (did:key:z6Mk...).
func DIDKey(pub ed25519.PublicKey) (string, error) {
	mb, err := EncodeMultibaseKey(pub)
	if err != nil {
		return "", err
	}
	return "did:key:" + mb, nil
}

// PublicKeyFromDIDKey extracts the Ed25519 key from a did:key identifier.
// A fragment (#...) is ignored.
func PublicKeyFromDIDKey(did string) (ed25519.PublicKey, error) {
	rest, ok := strings.CutPrefix(did, "did:key:")
	if !ok {
		return nil, errs.New(errs.Crypto, "KEY-DID-001", "not a did:key identifier")
	}
	rest, _, _ = strings.Cut(rest, "#")
	return DecodeMultibaseKey(rest)
}

// EncodeSignature renders signature bytes as a multibase base58btc proofValue.
func EncodeSignature(sig []byte) (string, error) {
	return multibase.Encode(multibase.Base58BTC, sig)
}

// DecodeSignature parses a multibase proofValue.
func DecodeSignature(s string) ([]byte, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return nil, errs.Wrap(errs.Crypto, "KEY-SIG-003", "invalid proofValue", err)
	}
	return data, nil
}
