package engine

import "encoding/json"

// Context is the shared key/value state threaded through a skill chain.
// Values must be JSON-serializable.
//
// The merge contract is last writer wins: a skill's returned context is
// merged over the accumulated context, so new keys are added, returned keys
// overwrite, and keys the skill did not return survive untouched. Skills
// therefore cannot destroy state they do not own, but they also must not
// assume another skill's keys remain unset.
type Context map[string]any

// Clone returns a shallow copy of the context. Top-level key mutations on
// the copy do not affect the original; nested values are shared.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge returns a new context containing all keys of c overlaid with all
// keys of other. Neither input is mutated.
func (c Context) Merge(other Context) Context {
	out := c.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Get returns the value stored under key and whether it was present.
func (c Context) Get(key string) (any, bool) {
	v, ok := c[key]
	return v, ok
}

// String returns the string stored under key, or "" if absent or not a string.
func (c Context) String(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// With returns a copy of the context with key set to value.
func (c Context) With(key string, value any) Context {
	out := c.Clone()
	out[key] = value
	return out
}

// Keys returns the keys currently present in the context.
func (c Context) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// Encode serializes the context to JSON.
func (c Context) Encode() (json.RawMessage, error) {
	return json.Marshal(c)
}

// DecodeContext deserializes a context from JSON. A nil or empty input
// yields an empty context.
func DecodeContext(data json.RawMessage) (Context, error) {
	if len(data) == 0 {
		return Context{}, nil
	}
	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c == nil {
		c = Context{}
	}
	return c, nil
}
