package procedure

// Context is the per-call key/value state handed to middlewares and
// handlers. Values are never mutated in place; Merge returns a new map.
type Context map[string]any

// Merge returns a new Context holding c overridden by delta.
func (c Context) Merge(delta Context) Context {
	out := make(Context, len(c)+len(delta))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range delta {
		out[k] = v
	}
	return out
}

// Value returns the value stored under key, or nil.
func (c Context) Value(key string) any {
	return c[key]
}

// String returns the string stored under key, or "".
func (c Context) String(key string) string {
	s, _ := c[key].(string)
	return s
}
