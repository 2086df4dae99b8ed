package notify

// Value is text supplied to the builder, either as a literal or as a function
// evaluated once, when the setter is called.
type Value interface {
	resolve() string
}

// Literal is a fixed string value.
type Literal string

func (l Literal) resolve() string { return string(l) }

// Deferred produces its value on demand. The builder calls it exactly once.
type Deferred func() string

func (d Deferred) resolve() string {
	if d == nil {
		return ""
	}
	return d()
}
