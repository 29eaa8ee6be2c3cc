// Package trie implements the Merkle-Patricia trie over the KV store: the
// world-state root commitment, mapping keccak(address) -> rlp(account),
// and per-account storage tries mapping keccak(slot) -> rlp(value). No
// trie implementation exists anywhere in the retrieval pack, so this
// package is written from first principles in the surrounding general
// idiom (pkg/errors, small node types, content-addressed storage), the way
// the corpus's account-model chains (go-quai/erigon, both go-ethereum
// derivatives) structure theirs conceptually.
package trie

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/ghostkasd/ghostkasd/internal/primitives"
)

// nodeKind tags the three node shapes a hex-prefix Merkle-Patricia trie can
// hold.
type nodeKind byte

const (
	kindLeaf nodeKind = iota
	kindExtension
	kindBranch
)

// node is the in-memory representation of a trie node. Exactly one of the
// kind-specific fields is meaningful, selected by Kind.
type node struct {
	Kind nodeKind

	// Leaf and extension nodes carry a nibble-path key.
	Path []byte

	// Leaf nodes carry a value; extension nodes point at Next.
	Value []byte
	Next  primitives.Hash

	// Branch nodes fan out over the 16 possible next nibbles, plus an
	// optional value for a key that terminates exactly at this branch.
	Children    [16]primitives.Hash
	BranchValue []byte
}

// isEmptyRef reports whether a hash slot is unset (the zero hash is used as
// "no child").
func isEmptyRef(h primitives.Hash) bool {
	return h == primitives.ZeroHash
}

// encode serializes a node to its canonical byte form, used both as the
// storage value and as the input to hashing for its own content address.
func (n *node) encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(n.Kind))
	switch n.Kind {
	case kindLeaf:
		writeBytes(&buf, n.Path)
		writeBytes(&buf, n.Value)
	case kindExtension:
		writeBytes(&buf, n.Path)
		buf.Write(n.Next[:])
	case kindBranch:
		for _, child := range n.Children {
			buf.Write(child[:])
		}
		writeBytes(&buf, n.BranchValue)
	}
	return buf.Bytes()
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	length := len(b)
	buf.WriteByte(byte(length >> 8))
	buf.WriteByte(byte(length))
	buf.Write(b)
}

func readBytes(data []byte, offset int) ([]byte, int, error) {
	if offset+2 > len(data) {
		return nil, 0, errors.New("corrupt trie node: truncated length prefix")
	}
	length := int(data[offset])<<8 | int(data[offset+1])
	offset += 2
	if offset+length > len(data) {
		return nil, 0, errors.New("corrupt trie node: truncated payload")
	}
	return data[offset : offset+length], offset + length, nil
}

// decodeNode parses the encoding produced by node.encode.
func decodeNode(data []byte) (*node, error) {
	if len(data) < 1 {
		return nil, errors.New("corrupt trie node: empty encoding")
	}
	n := &node{Kind: nodeKind(data[0])}
	offset := 1
	switch n.Kind {
	case kindLeaf:
		path, next, err := readBytes(data, offset)
		if err != nil {
			return nil, err
		}
		n.Path = path
		value, _, err := readBytes(data, next)
		if err != nil {
			return nil, err
		}
		n.Value = value
	case kindExtension:
		path, next, err := readBytes(data, offset)
		if err != nil {
			return nil, err
		}
		n.Path = path
		if next+primitives.HashSize > len(data) {
			return nil, errors.New("corrupt trie node: truncated extension target")
		}
		copy(n.Next[:], data[next:next+primitives.HashSize])
	case kindBranch:
		for i := 0; i < 16; i++ {
			if offset+primitives.HashSize > len(data) {
				return nil, errors.New("corrupt trie node: truncated branch children")
			}
			copy(n.Children[i][:], data[offset:offset+primitives.HashSize])
			offset += primitives.HashSize
		}
		value, _, err := readBytes(data, offset)
		if err != nil {
			return nil, err
		}
		n.BranchValue = value
	default:
		return nil, errors.Errorf("corrupt trie node: unknown kind %d", n.Kind)
	}
	return n, nil
}

// hash returns the node's content address.
func (n *node) hash() primitives.Hash {
	return primitives.HashData(n.encode())
}

// keyToNibbles expands a byte key into its nibble representation, two
// nibbles per byte, most-significant nibble first.
func keyToNibbles(key []byte) []byte {
	nibbles := make([]byte, len(key)*2)
	for i, b := range key {
		nibbles[i*2] = b >> 4
		nibbles[i*2+1] = b & 0x0f
	}
	return nibbles
}

// commonPrefixLen returns the length of the shared prefix of a and b.
func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
