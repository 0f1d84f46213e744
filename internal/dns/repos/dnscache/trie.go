package dnscache

// Trie keys are canonical names read back to front, so "a.example.com" and
// "b.example.com" share the "moc.elpmaxe." path.
const alphabetSize = 38

const nilIdx int32 = -1

// symbol maps a key byte to its child slot: 0-9, a-z, '-', '.'.
func symbol(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c == '-':
		return 36
	case c == '.':
		return 37
	default:
		return -1
	}
}

// node is one trie position. sum counts the nodes in this subtree, itself
// included, whose record chain is non-empty; a non-root node with sum 0 is
// pruned immediately.
type node struct {
	children [alphabetSize]int32
	parent   int32
	sym      int8
	isEnd    bool
	sum      int32
	head     int32
	tail     int32
}

func newNode(parent int32, sym int8) node {
	n := node{parent: parent, sym: sym, head: nilIdx, tail: nilIdx}
	for i := range n.children {
		n.children[i] = nilIdx
	}
	return n
}

// validKey reports whether every byte of name is in the trie alphabet.
func validKey(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if symbol(name[i]) < 0 {
			return false
		}
	}
	return true
}

// findNode walks the reversed name without creating nodes.
func (c *Cache) findNode(name string) (int32, bool) {
	n := int32(0)
	for i := len(name) - 1; i >= 0; i-- {
		s := symbol(name[i])
		if s < 0 {
			return nilIdx, false
		}
		n = c.nodes[n].children[s]
		if n == nilIdx {
			return nilIdx, false
		}
	}
	return n, true
}

// insertPath walks the reversed name, creating missing nodes. name must
// already satisfy validKey.
func (c *Cache) insertPath(name string) int32 {
	n := int32(0)
	for i := len(name) - 1; i >= 0; i-- {
		s := symbol(name[i])
		child := c.nodes[n].children[s]
		if child == nilIdx {
			child = c.allocNode(n, int8(s))
			c.nodes[n].children[s] = child
		}
		n = child
	}
	return n
}

func (c *Cache) allocNode(parent int32, sym int8) int32 {
	if k := len(c.freeNodes); k > 0 {
		idx := c.freeNodes[k-1]
		c.freeNodes = c.freeNodes[:k-1]
		c.nodes[idx] = newNode(parent, sym)
		return idx
	}
	c.nodes = append(c.nodes, newNode(parent, sym))
	return int32(len(c.nodes) - 1)
}

// markEnd records that a domain now terminates at n.
func (c *Cache) markEnd(n int32) {
	c.nodes[n].isEnd = true
	for cur := n; cur != nilIdx; cur = c.nodes[cur].parent {
		c.nodes[cur].sum++
	}
}

// unmarkEnd clears the terminal flag at n and frees every node on the way up
// whose subtree no longer holds a domain.
func (c *Cache) unmarkEnd(n int32) {
	c.nodes[n].isEnd = false
	for cur := n; cur != nilIdx; cur = c.nodes[cur].parent {
		c.nodes[cur].sum--
	}
	for cur := n; cur != 0 && c.nodes[cur].sum == 0; {
		parent := c.nodes[cur].parent
		c.nodes[parent].children[c.nodes[cur].sym] = nilIdx
		c.freeNodes = append(c.freeNodes, cur)
		cur = parent
	}
}

// liveNodes counts allocated nodes, root included.
func (c *Cache) liveNodes() int {
	return len(c.nodes) - len(c.freeNodes)
}
