package hash

import (
	"encoding/binary"
	"slices"

	"github.com/zeebo/xxh3"

	"github.com/arloliu/relay/types"
)

// Ring implements a consistent hash ring with virtual nodes.
//
// The ring maps tags to members using consistent hashing, which keeps tag
// placement stable with minimal churn when members join or leave.
type Ring struct {
	// nodes contains all virtual nodes on the ring, sorted by hash
	nodes []virtualNode

	// members holds the unique list of members present on the ring
	members []string

	// seed for hash function (0 means no seed)
	seed uint64
}

// virtualNode represents a virtual node on the hash ring.
type virtualNode struct {
	hash     uint64 // Position on the ring
	memberID string // Member owning this virtual node
}

// NewRing creates a new consistent hash ring.
//
// Parameters:
//   - members: List of member IDs to place on the ring
//   - virtualNodesPerMember: Number of virtual nodes per member (higher = better distribution)
//   - seed: Seed for hash function (use 0 for unseeded hashing, non-zero for deterministic seeding)
//
// Returns:
//   - *Ring: Initialized hash ring
//
// Example:
//
//	ring := hash.NewRing([]string{"member-0", "member-1"}, 150, 0)
//	memberID := ring.Owner("orders")
func NewRing(members []string, virtualNodesPerMember int, seed uint64) *Ring {
	ring := &Ring{
		nodes:   make([]virtualNode, 0, len(members)*virtualNodesPerMember),
		members: nil,
		seed:    seed,
	}

	// Deduplicate members while preserving order
	if len(members) > 0 {
		seen := make(map[string]struct{}, len(members))
		uniq := make([]string, 0, len(members))
		for _, m := range members {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			uniq = append(uniq, m)
		}
		ring.members = uniq
	} else {
		ring.members = []string{}
	}

	for _, memberID := range ring.members {
		ring.addMember(memberID, virtualNodesPerMember)
	}

	// Sort nodes by hash for binary search
	slices.SortFunc(ring.nodes, func(a, b virtualNode) int {
		if a.hash < b.hash {
			return -1
		}
		if a.hash > b.hash {
			return 1
		}

		return 0
	})

	return ring
}

// Owner finds the member responsible for a tag.
//
// Uses binary search to find the first virtual node whose hash is >= the tag
// hash. If no such node exists (tag hash > all nodes), wraps around to the
// first node.
//
// Parameters:
//   - tag: Tag to place on the ring
//
// Returns:
//   - string: Member ID responsible for this tag, or "" when the ring is empty
func (r *Ring) Owner(tag types.Tag) string {
	if len(r.nodes) == 0 {
		return ""
	}

	h := r.hash(tag.String())

	return r.getNodeByHash(h)
}

// Members returns the list of unique members on the ring.
func (r *Ring) Members() []string {
	// Return a copy to avoid external mutation
	return append([]string(nil), r.members...)
}

// Size returns the total number of virtual nodes on the ring.
func (r *Ring) Size() int {
	return len(r.nodes)
}

// addMember adds virtual nodes for a member to the ring.
func (r *Ring) addMember(memberID string, virtualNodes int) {
	for i := range virtualNodes {
		// Compute hash for (memberID, i) without building a concatenated string.
		// Fold memberID, then vnode index using the previous hash as seed for
		// stable distribution.
		var h uint64
		if r.seed != 0 {
			h = xxh3.HashStringSeed(memberID, r.seed)
		} else {
			h = xxh3.HashString(memberID)
		}

		var ib [8]byte
		binary.LittleEndian.PutUint64(ib[:], uint64(i)) //nolint:gosec
		h = xxh3.HashSeed(ib[:], h)

		r.nodes = append(r.nodes, virtualNode{
			hash:     h,
			memberID: memberID,
		})
	}
}

// hash computes a 64-bit hash of the key using XXH3.
func (r *Ring) hash(key string) uint64 {
	if r.seed != 0 {
		return xxh3.HashStringSeed(key, r.seed)
	}

	return xxh3.HashString(key)
}

// getNodeByHash returns the member for a given hash value using binary search over the ring.
func (r *Ring) getNodeByHash(target uint64) string {
	// Binary search for first node >= target
	idx, found := slices.BinarySearchFunc(r.nodes, target, func(node virtualNode, t uint64) int {
		if node.hash < t {
			return -1
		}
		if node.hash > t {
			return 1
		}

		return 0
	})

	// If idx >= len(nodes), wrap around to the first node
	if !found && idx >= len(r.nodes) {
		idx = 0
	}

	return r.nodes[idx].memberID
}
