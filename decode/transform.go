package decode

// Action tells Delimited what to do with the output of a Transformer.
type Action uint8

// Transformer actions.
const (
	// ActionNone appends nothing.
	ActionNone Action = iota
	// ActionOne appends Transform.Byte.
	ActionOne
	// ActionMany appends Transform.Bytes.
	ActionMany
	// ActionAbort abandons the frame and emits Transform.Abort.
	ActionAbort
)

// Transform is the result of feeding one raw byte to a Transformer.
type Transform[T any] struct {
	Action Action
	Byte   byte
	Bytes  []byte
	Abort  T
}

// TransformNone produces no output for the current byte.
func TransformNone[T any]() Transform[T] {
	return Transform[T]{Action: ActionNone}
}

// TransformOne appends b to the frame payload.
func TransformOne[T any](b byte) Transform[T] {
	return Transform[T]{Action: ActionOne, Byte: b}
}

// TransformMany appends bs to the frame payload.
func TransformMany[T any](bs []byte) Transform[T] {
	return Transform[T]{Action: ActionMany, Bytes: bs}
}

// TransformAbort abandons the frame and surfaces msg as a decoded message.
func TransformAbort[T any](msg T) Transform[T] {
	return Transform[T]{Action: ActionAbort, Abort: msg}
}

// Transformer rewrites the raw bytes of a frame body one at a time.
//
// prev holds the payload accumulated so far in the current frame. It is
// read-only for the transformer. Reset is called every time a new frame
// opens.
type Transformer[T any] interface {
	Transform(prev []byte, b byte) Transform[T]
	Reset()
}

// Identity passes every byte through unchanged.
type Identity[T any] struct{}

// Transform returns b.
func (Identity[T]) Transform(_ []byte, b byte) Transform[T] {
	return TransformOne[T](b)
}

// Reset is a no-op.
func (Identity[T]) Reset() {}
