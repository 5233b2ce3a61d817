package table

// Collection is an ordered set of named batches.
type Collection struct {
	batches map[string]*Batch
	names   []string
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{batches: make(map[string]*Batch)}
}

// Put stores a batch under name, replacing any previous one in place.
func (c *Collection) Put(name string, b *Batch) {
	if _, ok := c.batches[name]; !ok {
		c.names = append(c.names, name)
	}

	c.batches[name] = b
}

// Get returns the batch stored under name.
func (c *Collection) Get(name string) (*Batch, bool) {
	if c == nil {
		return nil, false
	}

	b, ok := c.batches[name]

	return b, ok
}

// Names returns the batch names in insertion order.
func (c *Collection) Names() []string {
	if c == nil {
		return nil
	}

	out := make([]string, len(c.names))
	copy(out, c.names)

	return out
}

// Len returns the number of batches.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}

	return len(c.names)
}
