package wfc

import (
	"math/bits"
	"strconv"
	"strings"
)

// PrototypeID identifies a tile prototype in a Catalog
type PrototypeID int

// CandidateSet is a fixed-size bitset of prototype ids.
// The universe size is fixed when the set is created; sets built for the
// same catalog can be combined with each other.
type CandidateSet struct {
	words []uint64
	size  int
}

// NewCandidateSet returns an empty set able to hold ids in [0, size)
func NewCandidateSet(size int) CandidateSet {
	if size < 0 {
		size = 0
	}
	return CandidateSet{
		words: make([]uint64, (size+63)/64),
		size:  size,
	}
}

// FullCandidateSet returns a set containing every id in [0, size)
func FullCandidateSet(size int) CandidateSet {
	s := NewCandidateSet(size)
	for i := range s.words {
		s.words[i] = ^uint64(0)
	}
	if rem := size % 64; rem != 0 {
		s.words[len(s.words)-1] = (uint64(1) << uint(rem)) - 1
	}
	return s
}

// CandidateSetOf builds a set holding the given ids. Ids outside [0, size) are ignored.
func CandidateSetOf(size int, ids ...PrototypeID) CandidateSet {
	s := NewCandidateSet(size)
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Universe returns the number of ids the set can hold
func (s CandidateSet) Universe() int {
	return s.size
}

// Add inserts id into the set
func (s CandidateSet) Add(id PrototypeID) {
	if int(id) < 0 || int(id) >= s.size {
		return
	}
	s.words[id/64] |= uint64(1) << uint(id%64)
}

// Remove deletes id from the set
func (s CandidateSet) Remove(id PrototypeID) {
	if int(id) < 0 || int(id) >= s.size {
		return
	}
	s.words[id/64] &^= uint64(1) << uint(id%64)
}

// Has reports whether id is in the set
func (s CandidateSet) Has(id PrototypeID) bool {
	if int(id) < 0 || int(id) >= s.size {
		return false
	}
	return s.words[id/64]&(uint64(1)<<uint(id%64)) != 0
}

// Len returns the number of ids in the set
func (s CandidateSet) Len() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Empty reports whether the set has no members
func (s CandidateSet) Empty() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the set
func (s CandidateSet) Clone() CandidateSet {
	c := CandidateSet{words: make([]uint64, len(s.words)), size: s.size}
	copy(c.words, s.words)
	return c
}

// UnionWith adds every member of other to s
func (s CandidateSet) UnionWith(other CandidateSet) {
	for i := range s.words {
		if i < len(other.words) {
			s.words[i] |= other.words[i]
		}
	}
}

// Intersect returns a new set holding the ids present in both s and other
func (s CandidateSet) Intersect(other CandidateSet) CandidateSet {
	out := NewCandidateSet(s.size)
	for i := range out.words {
		if i < len(other.words) {
			out.words[i] = s.words[i] & other.words[i]
		}
	}
	return out
}

// SubsetOf reports whether every member of s is also in other
func (s CandidateSet) SubsetOf(other CandidateSet) bool {
	for i, w := range s.words {
		var o uint64
		if i < len(other.words) {
			o = other.words[i]
		}
		if w&^o != 0 {
			return false
		}
	}
	return true
}

// Equal reports whether both sets hold the same ids
func (s CandidateSet) Equal(other CandidateSet) bool {
	return s.size == other.size && s.SubsetOf(other) && other.SubsetOf(s)
}

// First returns the lowest id in the set
func (s CandidateSet) First() (PrototypeID, bool) {
	for i, w := range s.words {
		if w != 0 {
			return PrototypeID(i*64 + bits.TrailingZeros64(w)), true
		}
	}
	return 0, false
}

// Nth returns the n-th lowest member (0-based)
func (s CandidateSet) Nth(n int) (PrototypeID, bool) {
	if n < 0 {
		return 0, false
	}
	for i, w := range s.words {
		c := bits.OnesCount64(w)
		if n >= c {
			n -= c
			continue
		}
		for ; n > 0; n-- {
			w &= w - 1 // clear lowest set bit
		}
		return PrototypeID(i*64 + bits.TrailingZeros64(w)), true
	}
	return 0, false
}

// IDs returns the members in ascending order
func (s CandidateSet) IDs() []PrototypeID {
	ids := make([]PrototypeID, 0, s.Len())
	s.Each(func(id PrototypeID) {
		ids = append(ids, id)
	})
	return ids
}

// Each calls fn for every member in ascending order
func (s CandidateSet) Each(fn func(PrototypeID)) {
	for i, w := range s.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			fn(PrototypeID(i*64 + b))
			w &^= uint64(1) << uint(b)
		}
	}
}

// appendBytes writes the raw words little-endian, used for fingerprints
func (s CandidateSet) appendBytes(buf []byte) []byte {
	for _, w := range s.words {
		for i := 0; i < 8; i++ {
			buf = append(buf, byte(w>>(8*i)))
		}
	}
	return buf
}

// String formats the set as {a,b,c}
func (s CandidateSet) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	s.Each(func(id PrototypeID) {
		if !first {
			sb.WriteByte(',')
		}
		first = false
		sb.WriteString(strconv.Itoa(int(id)))
	})
	sb.WriteByte('}')
	return sb.String()
}
