// Package interfaces defines core interfaces and types for the confidential
// chat gateway, separating interface definitions from implementations.
//
// # Storage Interfaces
//
// StorageBackend: Named-object storage for encrypted key blobs across
// multiple backend types (file, S3, IPFS, Vault). Objects are addressed by
// operator-chosen names rather than content hashes so a blob sealed
// out-of-band can be found at a fixed path.
//
// # Domain Types
//
//   - ChatTurn: a single user or assistant entry in the conversation history
//   - NetworkStatus: connection state of the current EVM RPC endpoint
//   - KeyObjectName: validated name of a stored encrypted key blob
//
// # Error Taxonomy
//
// The sentinel errors in this package form the shared error taxonomy:
// not-found, decryption failure, connection failure, invalid input and
// upstream completion failure. The HTTP layer maps each sentinel to a
// status code and a JSON error body; components wrap them with %w.
package interfaces
