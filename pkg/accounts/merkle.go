package accounts

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/fortiblox/x1-anchor/pkg/types"
)

const (
	// merkleArity is the number of children per node in the Merkle tree.
	merkleArity = 16
)

// HashAccount computes the leaf hash of one account state. A deleted
// account hashes to ZeroHash.
func HashAccount(pubkey types.Pubkey, account *types.Account) types.Hash {
	if account == nil {
		return types.ZeroHash
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(account.Lamports))
	lamports := append([]byte(nil), buf[:]...)
	binary.LittleEndian.PutUint64(buf[:], uint64(account.RentEpoch))
	rentEpoch := buf[:]

	executable := []byte{0}
	if account.Executable {
		executable[0] = 1
	}
	return types.SHA256Multi(lamports, rentEpoch, account.Data, executable, account.Owner[:], pubkey[:])
}

// ComputeDeltaHash computes a 16-ary Merkle tree hash over the new state of
// each delta. Deltas are sorted by pubkey first, so the result depends only
// on the set of changes.
func ComputeDeltaHash(deltas []types.AccountDelta) types.Hash {
	if len(deltas) == 0 {
		return types.ZeroHash
	}

	sorted := make([]types.AccountDelta, len(deltas))
	copy(sorted, deltas)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Pubkey[:], sorted[j].Pubkey[:]) < 0
	})

	hashes := make([]types.Hash, len(sorted))
	for i, d := range sorted {
		hashes[i] = HashAccount(d.Pubkey, d.NewAccount)
	}
	return computeMerkleRoot(hashes)
}

// computeMerkleRoot computes the root of a 16-ary Merkle tree.
func computeMerkleRoot(hashes []types.Hash) types.Hash {
	if len(hashes) == 0 {
		return types.ZeroHash
	}
	for len(hashes) > 1 {
		hashes = computeNextLevel(hashes)
	}
	return hashes[0]
}

// computeNextLevel computes the next level of the 16-ary Merkle tree.
func computeNextLevel(hashes []types.Hash) []types.Hash {
	numParents := (len(hashes) + merkleArity - 1) / merkleArity
	parents := make([]types.Hash, numParents)

	for i := 0; i < numParents; i++ {
		start := i * merkleArity
		end := start + merkleArity
		if end > len(hashes) {
			end = len(hashes)
		}
		parents[i] = hashChildren(hashes[start:end])
	}
	return parents
}

// hashChildren computes the hash of a group of child nodes.
func hashChildren(children []types.Hash) types.Hash {
	if len(children) == 1 {
		return children[0]
	}
	parts := make([][]byte, len(children))
	for i := range children {
		parts[i] = children[i][:]
	}
	return types.SHA256Multi(parts...)
}
