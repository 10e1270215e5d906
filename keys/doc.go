// Package keys holds key material helpers for issuers, revocation signers and
// handshake services.
//
// Stable:
//   - Signer implementations (Ed25519, Dilithium3) and PublicKey verification.
//   - did:key and publicKeyMultibase encoding.
//   - Deterministic role-seed derivation and HKDF MAC-key derivation.
//
// Experimental:
//   - Filesystem-backed key storage (KeyStore). It is a local-first utility for
//     the CLI and daemon and may change in minor releases.
package keys
