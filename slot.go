package passrec

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"slices"

	"golang.org/x/crypto/blake2b"

	"github.com/gogpu/passrec/internal/cache"
)

// SlotKind tells which field of a ParameterSlot holds its value.
type SlotKind uint8

const (
	// SlotValue holds a typed Go value, such as a sampler descriptor.
	SlotValue SlotKind = iota
	// SlotInline holds raw bytes.
	SlotInline
	// SlotFile references a file by canonical path.
	SlotFile
	// SlotPass references the output of another pass.
	SlotPass
)

var slotKindNames = [...]string{
	SlotValue:  "value",
	SlotInline: "inline",
	SlotFile:   "file",
	SlotPass:   "pass",
}

func (k SlotKind) String() string {
	if int(k) < len(slotKindNames) {
		return slotKindNames[k]
	}
	return fmt.Sprintf("SlotKind(%d)", k)
}

// ParameterSlot is one bindable input of a chain node.
//
// A slot is immutable once its node is built. Shortcut is derived at
// construction: a content hash for inline data and typed values, the
// canonical absolute path for files.
type ParameterSlot struct {
	Kind    SlotKind
	Data    []byte
	Path    string
	Value   any
	Pass    *PassResult
	Channel int

	Shortcut   string
	Name       string
	IsArgument bool
	Label      string

	// err records data that could not be encoded when the chain was built.
	// Evaluation reports it as a configuration error.
	err error
}

// SlotOption configures the slot of the node being built.
type SlotOption func(*ParameterSlot)

// Named gives the slot a name. A named slot can be overridden by an
// argument slot of the same name appended later in the chain.
func Named(name string) SlotOption {
	return func(s *ParameterSlot) { s.Name = name }
}

// AsArgument marks the node as an argument: it performs no action itself
// and instead replaces every node of the same name. Use it together with
// Named.
func AsArgument() SlotOption {
	return func(s *ParameterSlot) { s.IsArgument = true }
}

// Label attaches a debug label to the objects created from the slot.
func Label(label string) SlotOption {
	return func(s *ParameterSlot) { s.Label = label }
}

func inlineSlot(data []byte) *ParameterSlot {
	return &ParameterSlot{Kind: SlotInline, Data: data, Shortcut: ContentKey(data)}
}

func fileSlot(path string) *ParameterSlot {
	canon, err := cache.CanonicalPath(path)
	if err != nil {
		canon = filepath.Clean(path)
	}
	// Only the path folds; entry points and other key parts are case-sensitive.
	return &ParameterSlot{Kind: SlotFile, Path: canon, Shortcut: cache.FoldKey(canon)}
}

func valueSlot(v any) *ParameterSlot {
	return &ParameterSlot{Kind: SlotValue, Value: v, Shortcut: ContentKey([]byte(fmt.Sprintf("%T%+v", v, v)))}
}

func passSlot(r *PassResult, channel int) *ParameterSlot {
	s := &ParameterSlot{Kind: SlotPass, Pass: r, Channel: channel}
	s.Shortcut = fmt.Sprintf("pass:%p:%d", r, channel)
	return s
}

func errorSlot(err error) *ParameterSlot {
	return &ParameterSlot{Kind: SlotInline, err: err}
}

func (s *ParameterSlot) apply(opts []SlotOption) *ParameterSlot {
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// describe names the slot for logs and errors.
func (s *ParameterSlot) describe() string {
	switch {
	case s.Label != "":
		return s.Label
	case s.Kind == SlotFile:
		return s.Path
	default:
		return s.Shortcut
	}
}

// ContentKey returns the 128-bit BLAKE2b hash of the concatenated parts,
// formatted like a GUID (8-4-4-4-12 hex digits).
func ContentKey(parts ...[]byte) string {
	h, err := blake2b.New(16, nil)
	if err != nil {
		panic(err) // only for invalid sizes
	}
	for _, p := range parts {
		h.Write(p)
	}
	var sum [16]byte
	h.Sum(sum[:0])
	var buf [36]byte
	hex.Encode(buf[0:8], sum[0:4])
	buf[8] = '-'
	hex.Encode(buf[9:13], sum[4:6])
	buf[13] = '-'
	hex.Encode(buf[14:18], sum[6:8])
	buf[18] = '-'
	hex.Encode(buf[19:23], sum[8:10])
	buf[23] = '-'
	hex.Encode(buf[24:36], sum[10:16])
	return string(buf[:])
}

// encodeData turns a byte slice or a slice of fixed-size values into
// little-endian bytes.
func encodeData(data any) ([]byte, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case []byte:
		return slices.Clone(v), nil
	case string:
		return []byte(v), nil
	}
	if binary.Size(data) < 0 {
		return nil, fmt.Errorf("%w: cannot encode %T as buffer data", ErrConfiguration, data)
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("%w: encode %T: %v", ErrConfiguration, data, err)
	}
	return buf.Bytes(), nil
}

// padTo16 pads data with zeros to a multiple of 16 bytes, the alignment of
// uniform blocks.
func padTo16(data []byte) []byte {
	n := (len(data) + 15) &^ 15
	if n == len(data) {
		return data
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}
