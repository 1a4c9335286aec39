package curio

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultContentHash addresses a payload registered through the default
// collection's inbox: keccak256 of the raw bytes. An empty payload is a
// valid "null" registration.
func DefaultContentHash(payload []byte) string {
	return hexutil.Encode(crypto.Keccak256(payload))
}

// CollectionContentHash namespaces the payload hash under the collection
// name so identical payloads in different collections address distinct
// items: keccak256(name || keccak256(payload)).
func CollectionContentHash(name string, payload []byte) string {
	inner := crypto.Keccak256(payload)
	return hexutil.Encode(crypto.Keccak256([]byte(name), inner))
}

// DeriveInboxAddress deterministically derives a collection's inbox address
// from its id. The address is stable across restarts and deployments.
func DeriveInboxAddress(collectionID int64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(collectionID))
	digest := crypto.Keccak256([]byte("curio/inbox"), buf[:])
	return common.BytesToAddress(digest[12:]).Hex()
}
