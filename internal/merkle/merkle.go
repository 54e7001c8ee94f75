// Package merkle implements the airdrop proof scheme shared by the tree
// builder (operator side) and the verifier (ledger side).
//
// Canonical encoding, fixed end-to-end:
//
//	leaf  = keccak256(uint64-BE leafIndex ‖ 20-byte recipient ‖ 32-byte BE amount)
//	node  = keccak256(min(l, r) ‖ max(l, r))
//
// Siblings are sorted before hashing, so proofs do not need to encode
// left/right positions. The package is stateless; claim bookkeeping lives in
// the ledger, keyed by leaf index.
package merkle

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Leaf is one (recipient, amount) entry of a distribution. Its position in
// the slice passed to BuildTree is its leaf index.
type Leaf struct {
	Recipient common.Address
	Amount    *big.Int
}

// LeafHash computes the canonical hash of a leaf at the given index
func LeafHash(leafIndex uint64, recipient common.Address, amount *big.Int) common.Hash {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], leafIndex)

	var amt [32]byte
	amount.FillBytes(amt[:])

	return common.BytesToHash(crypto.Keccak256(idx[:], recipient.Bytes(), amt[:]))
}

// Verify recomputes the root from a leaf and its proof path and compares it
// against the published root. A mismatch returns false, not an error: wrong
// amounts and stale proofs are expected, frequent outcomes.
func Verify(root common.Hash, leafIndex uint64, recipient common.Address, amount *big.Int, proof []common.Hash) bool {
	node := LeafHash(leafIndex, recipient, amount)
	for _, sibling := range proof {
		node = hashPair(node, sibling)
	}
	return node == root
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return common.BytesToHash(crypto.Keccak256(a[:], b[:]))
}

// Tree is a Merkle tree over a fixed leaf set. Odd nodes at any level are
// promoted to the next level un-hashed.
type Tree struct {
	levels [][]common.Hash // levels[0] = leaf hashes, last level = root
}

// BuildTree constructs a tree over the given leaves. Returns nil for an empty
// leaf set.
func BuildTree(leaves []Leaf) *Tree {
	if len(leaves) == 0 {
		return nil
	}

	level := make([]common.Hash, len(leaves))
	for i, leaf := range leaves {
		level[i] = LeafHash(uint64(i), leaf.Recipient, leaf.Amount)
	}

	levels := [][]common.Hash{level}
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels}
}

// Root returns the tree root
func (t *Tree) Root() common.Hash {
	return t.levels[len(t.levels)-1][0]
}

// NumLeaves returns the number of leaves the tree was built over
func (t *Tree) NumLeaves() int {
	return len(t.levels[0])
}

// Proof returns the sibling path for the leaf at the given index, ordered
// leaf-to-root. Returns nil if the index is out of range.
func (t *Tree) Proof(leafIndex uint64) []common.Hash {
	if leafIndex >= uint64(len(t.levels[0])) {
		return nil
	}

	var proof []common.Hash
	idx := int(leafIndex)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling < len(level) {
			proof = append(proof, level[sibling])
		}
		idx /= 2
	}
	return proof
}
