// Package kms provides the key-management decrypt primitive used to unseal
// encrypted key blobs fetched from object storage.
//
// SimpleKMS derives per-key-resource sealing keys deterministically from a
// single master key, mirroring a cloud KMS decrypt call
// (key resource name, ciphertext) -> plaintext without the network round
// trip. The master key is expected to be released to the process by the
// confidential-VM launch policy; for development it can be supplied directly
// or derived from a passphrase with cryptoutils.DeriveMasterKey.
//
// There is deliberately no retry or caching here: a decrypt either succeeds
// or surfaces interfaces.ErrDecryptionFailed to the caller.
package kms
