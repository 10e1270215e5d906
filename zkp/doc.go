// Package zkp turns a PID, verifier-supplied shipping conditions and the
// holder's raw address into a proof a carrier can check without seeing the
// address.
//
// The Engine evaluates predicates on the holder side and hands the results,
// never the address, to a pluggable Backend as public inputs. Two backends
// ship with the package:
//
//   - DigestBackend binds public inputs to a circuit with SHA-256. It hides
//     nothing and proves nothing beyond integrity. Use it for tests and for
//     deployments that only need the protocol shape.
//   - PedersenBackend commits to the address on Ristretto255 and attaches a
//     Fiat-Shamir proof of knowledge of the opening, bound to the circuit and
//     public inputs. The address stays hidden, but the predicate results are
//     still asserted by the prover rather than proven by a circuit.
//
// Neither backend is a predicate circuit. A Groth16 (or similar) backend that
// proves the predicate over the committed address can be plugged in through
// the Backend interface without changing Engine callers.
package zkp
