package dataType

import "net"

type trieNode struct {
	children [2]*trieNode
	isEnd    bool
}

func (node *trieNode) insert(ip net.IP, ones int) {
	current := node
	for i := 0; i < ones; i++ {
		bit := (ip[i/8] >> (7 - uint(i%8))) & 1
		if current.children[bit] == nil {
			current.children[bit] = &trieNode{}
		}
		current = current.children[bit]
	}
	current.isEnd = true
}

func (node *trieNode) search(ip net.IP) bool {
	current := node
	for i := 0; i < len(ip)*8; i++ {
		if current.isEnd {
			return true
		}
		bit := (ip[i/8] >> (7 - uint(i%8))) & 1
		if current.children[bit] == nil {
			return false
		}
		current = current.children[bit]
	}
	return current.isEnd
}

// CIDRSet matches addresses against a list of IPv4 and IPv6 prefixes.
type CIDRSet struct {
	v4    trieNode
	v6    trieNode
	count int
}

func NewCIDRSet() *CIDRSet {
	return &CIDRSet{}
}

// Add inserts a prefix. IPv4-mapped IPv6 prefixes (::ffff:a.b.c.d/96+) are
// stored as IPv4, matching how Contains looks addresses up.
func (s *CIDRSet) Add(ipNet *net.IPNet) {
	ones, bits := ipNet.Mask.Size()
	if bits == 128 && ones >= 96 {
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			bits, ones = 32, ones-96
		}
	}
	if bits == 32 {
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			s.v4.insert(ip4, ones)
			s.count++
		}
		return
	}
	if ip16 := ipNet.IP.To16(); ip16 != nil {
		s.v6.insert(ip16, ones)
		s.count++
	}
}

// Empty reports whether no prefix was added.
func (s *CIDRSet) Empty() bool {
	return s == nil || s.count == 0
}

func (s *CIDRSet) Contains(ip net.IP) bool {
	if s == nil || ip == nil {
		return false
	}
	if ip4 := ip.To4(); ip4 != nil {
		return s.v4.search(ip4)
	}
	return s.v6.search(ip.To16())
}
