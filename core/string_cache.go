package core

// stringRange locates one encoded string record inside the string chunk.
type stringRange struct {
	start int
	end   int
}

// stringCache encodes each distinct string at most once per flush cycle and
// replays the encoded record into other chunks by byte range.
type stringCache struct {
	bytes  *Chunk
	ranges map[string]stringRange
}

func newStringCache() *stringCache {
	c := &stringCache{bytes: NewChunk(0)}
	c.reset()
	return c
}

// reset forgets every cached string. The empty string is cached again
// immediately so offset 0 always holds a valid zero-length record.
func (c *stringCache) reset() {
	c.bytes.Reset()
	c.ranges = make(map[string]stringRange, len(c.ranges))
	c.cache("")
}

func (c *stringCache) cache(value string) stringRange {
	if r, ok := c.ranges[value]; ok {
		return r
	}
	start := c.bytes.Len()
	r := stringRange{start: start, end: start + c.bytes.Write(value)}
	c.ranges[value] = r
	return r
}

// encode copies the record for value into dst, caching it first if needed.
func (c *stringCache) encode(dst *Chunk, value string) {
	r := c.cache(value)
	c.bytes.Copy(dst, r.start, r.end)
}

func (c *stringCache) size() int {
	return c.bytes.Len()
}

func (c *stringCache) count() int {
	return len(c.ranges)
}
