// Package storage provides named-object storage with pluggable backends for
// encrypted key blobs.
//
// The gateway needs exactly one kind of stored object: a KMS-sealed private
// key placed at a fixed, operator-chosen name. Backends therefore address
// objects by name rather than by content hash, and additionally support
// listing so the API can enumerate available key blobs.
//
// Supported backends:
//
//   - File system storage for local development and testing
//   - S3-compatible object storage for cloud deployments
//   - IPFS MFS storage for decentralized deployments
//   - Vault KV storage with token authentication
//
// # Storage URI Format
//
// Backends are specified using URI format:
//
//	file:///var/lib/gateway/keys/
//	s3://ACCESS_KEY:SECRET_KEY@bucket-name/prefix/?region=us-west-2
//	ipfs://ipfs.example.com:5001/keys
//	vault://vault.example.com:8200/secret/gateway-keys
//
// Fetching an absent object yields interfaces.ErrObjectNotFound; listing an
// empty backend yields an empty slice.
package storage
