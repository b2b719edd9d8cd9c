package process

import (
	"github.com/ProtonMail/pgpstream/packet"
)

// Keyblock is an ordered list of packets assembled by the sequencer:
// a key with its user IDs, subkeys and signatures, or a group of
// one-pass signatures with their matching signature packets. The
// first node is the root and determines how the block is processed.
type Keyblock struct {
	nodes []packet.Packet
}

// newKeyblock starts a block with its root packet.
func newKeyblock(root packet.Packet) *Keyblock {
	return &Keyblock{nodes: []packet.Packet{root}}
}

// append adds a node at the end of the block.
func (kb *Keyblock) append(pkt packet.Packet) {
	kb.nodes = append(kb.nodes, pkt)
}

// Root returns the first node.
func (kb *Keyblock) Root() packet.Packet {
	return kb.nodes[0]
}

// Len returns the number of nodes.
func (kb *Keyblock) Len() int {
	return len(kb.nodes)
}

// Node returns the node at index i.
func (kb *Keyblock) Node(i int) packet.Packet {
	return kb.nodes[i]
}

// nextSignature returns the index of the first signature node after
// index i, or -1 when there is none.
func (kb *Keyblock) nextSignature(i int) int {
	for j := i + 1; j < len(kb.nodes); j++ {
		if _, ok := kb.nodes[j].(*packet.Signature); ok {
			return j
		}
	}
	return -1
}
