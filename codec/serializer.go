package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/burrow/internal/hash"
)

// DefaultCompressThreshold is the string/bytes length above which values are
// stored as lz4 blocks.
const DefaultCompressThreshold = 4 << 10

// Options configures a Serializer.
type Options struct {
	// CompressThreshold enables lz4 for strings and byte slices longer than
	// this many bytes. Zero disables compression.
	CompressThreshold int
}

// DefaultOptions returns default serializer options.
var DefaultOptions = Options{
	CompressThreshold: DefaultCompressThreshold,
}

// Serializer encodes and decodes tagged values. It is safe for concurrent use.
type Serializer struct {
	reg  *Registry
	opts Options

	// canonical writes registered types by id only, so that equal values
	// always encode to equal bytes.
	canonical bool
}

// NewSerializer returns a Serializer resolving registered types through reg.
// A nil reg is replaced by an empty registry.
func NewSerializer(reg *Registry, optFns ...func(o *Options)) *Serializer {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if reg == nil {
		reg = NewRegistry()
	}
	return &Serializer{reg: reg, opts: opts}
}

// Registry returns the registry used for type references.
func (s *Serializer) Registry() *Registry { return s.reg }

// Marshal encodes v into a fresh byte slice.
func (s *Serializer) Marshal(v any) ([]byte, error) {
	buf := NewBuffer(make([]byte, 0, 32))
	if _, err := s.WriteValue(buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalKey encodes v like Marshal but always references registered types
// by their id. Map keys must be encoded this way: Marshal spells out a type
// name on first use, so the same key would otherwise hash differently.
func (s *Serializer) MarshalKey(v any) ([]byte, error) {
	k := *s
	k.canonical = true
	return k.Marshal(v)
}

// Unmarshal decodes a single value from data.
func (s *Serializer) Unmarshal(data []byte) (any, error) {
	return s.ReadValue(NewBuffer(data))
}

// WriteValue appends the encoding of v and returns the number of bytes written.
func (s *Serializer) WriteValue(buf *Buffer, v any) (int, error) {
	start := len(buf.b)
	if err := s.write(buf, v); err != nil {
		buf.b = buf.b[:start]
		return 0, err
	}
	return len(buf.b) - start, nil
}

// ReadValue decodes the next value.
func (s *Serializer) ReadValue(buf *Buffer) (any, error) {
	return s.read(buf)
}

// positionTagSize is the 8-byte position plus the 4-byte CRC32C.
const positionTagSize = 12

// WriteValueAt writes v prefixed by pos and a CRC32C over pos and the value,
// so that ReadValueAt can detect values read from the wrong place.
func (s *Serializer) WriteValueAt(buf *Buffer, v any, pos int64) (int, error) {
	start := len(buf.b)
	buf.PutUint64(uint64(pos)) //nolint:gosec // G115: positions are non-negative
	buf.PutUint32(0)
	if err := s.write(buf, v); err != nil {
		buf.b = buf.b[:start]
		return 0, err
	}
	crc := hash.NewCRC32C()
	_, _ = crc.Write(buf.b[start : start+8])
	_, _ = crc.Write(buf.b[start+positionTagSize:])
	binary.LittleEndian.PutUint32(buf.b[start+8:], crc.Sum32())
	return len(buf.b) - start, nil
}

// ReadValueAt decodes a value written by WriteValueAt at pos. A position or
// checksum mismatch fails with a *SerializationError.
func (s *Serializer) ReadValueAt(buf *Buffer, pos int64) (any, error) {
	stored, err := buf.ReadUint64()
	if err != nil {
		return nil, err
	}
	if stored != uint64(pos) { //nolint:gosec // G115: positions are non-negative
		return nil, &SerializationError{Pos: pos, Expected: uint64(pos), Actual: stored, Reason: "position tag mismatch"} //nolint:gosec // G115
	}
	want, err := buf.ReadUint32()
	if err != nil {
		return nil, err
	}
	start := buf.off
	v, err := s.read(buf)
	if err != nil {
		return nil, err
	}
	crc := hash.NewCRC32C()
	_, _ = crc.Write(buf.b[start-positionTagSize : start-4])
	_, _ = crc.Write(buf.b[start:buf.off])
	if got := crc.Sum32(); got != want {
		return nil, &SerializationError{Pos: pos, Expected: uint64(want), Actual: uint64(got), Reason: "checksum mismatch"}
	}
	return v, nil
}

func (s *Serializer) write(buf *Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.PutByte(byte(TagNull))
	case bool:
		buf.PutByte(byte(TagBool))
		buf.PutBool(x)
	case int8:
		buf.PutByte(byte(TagInt8))
		buf.PutByte(byte(x))
	case int16:
		buf.PutByte(byte(TagInt16))
		buf.PutUint16(uint16(x))
	case int32:
		buf.PutByte(byte(TagInt32))
		buf.PutUint32(uint32(x))
	case int64:
		buf.PutByte(byte(TagInt64))
		buf.PutUint64(uint64(x))
	case int:
		buf.PutByte(byte(TagInt))
		buf.PutUint64(uint64(x))
	case uint8:
		buf.PutByte(byte(TagUint8))
		buf.PutByte(x)
	case uint16:
		buf.PutByte(byte(TagUint16))
		buf.PutUint16(x)
	case uint32:
		buf.PutByte(byte(TagUint32))
		buf.PutUint32(x)
	case uint64:
		buf.PutByte(byte(TagUint64))
		buf.PutUint64(x)
	case uint:
		buf.PutByte(byte(TagUint))
		buf.PutUint64(uint64(x))
	case float32:
		buf.PutByte(byte(TagFloat32))
		buf.PutFloat32(x)
	case float64:
		buf.PutByte(byte(TagFloat64))
		buf.PutFloat64(x)
	case string:
		s.writeBlob(buf, TagString, []byte(x))
	case []byte:
		if x == nil {
			buf.PutByte(byte(TagNull))
			return nil
		}
		s.writeBlob(buf, TagBytes, x)
	case time.Time:
		buf.PutByte(byte(TagTime))
		writeTime(buf, x)
	case time.Duration:
		buf.PutByte(byte(TagDuration))
		buf.PutUint64(uint64(x))
	case []bool:
		buf.PutByte(byte(TagBoolSlice))
		buf.PutUvarint(uint64(len(x)))
		for _, e := range x {
			buf.PutBool(e)
		}
	case []int32:
		buf.PutByte(byte(TagInt32Slice))
		buf.PutUvarint(uint64(len(x)))
		for _, e := range x {
			buf.PutUint32(uint32(e))
		}
	case []int64:
		buf.PutByte(byte(TagInt64Slice))
		buf.PutUvarint(uint64(len(x)))
		for _, e := range x {
			buf.PutUint64(uint64(e))
		}
	case []int:
		buf.PutByte(byte(TagIntSlice))
		buf.PutUvarint(uint64(len(x)))
		for _, e := range x {
			buf.PutUint64(uint64(e))
		}
	case []float32:
		buf.PutByte(byte(TagFloat32Slice))
		buf.PutUvarint(uint64(len(x)))
		for _, e := range x {
			buf.PutFloat32(e)
		}
	case []float64:
		buf.PutByte(byte(TagFloat64Slice))
		buf.PutUvarint(uint64(len(x)))
		for _, e := range x {
			buf.PutFloat64(e)
		}
	case []string:
		buf.PutByte(byte(TagStringSlice))
		buf.PutUvarint(uint64(len(x)))
		for _, e := range x {
			buf.PutString(e)
		}
	case []any:
		buf.PutByte(byte(TagList))
		buf.PutUvarint(uint64(len(x)))
		for _, e := range x {
			if err := s.write(buf, e); err != nil {
				return err
			}
		}
	case map[string]any:
		buf.PutByte(byte(TagStringMap))
		buf.PutUvarint(uint64(len(x)))
		for _, k := range sortedKeys(x) {
			buf.PutString(k)
			if err := s.write(buf, x[k]); err != nil {
				return err
			}
		}
	case map[any]any:
		buf.PutByte(byte(TagMap))
		buf.PutUvarint(uint64(len(x)))
		for k, e := range x {
			if err := s.write(buf, k); err != nil {
				return err
			}
			if err := s.write(buf, e); err != nil {
				return err
			}
		}
	case Enum:
		return s.writeEnum(buf, x)
	case Entity:
		return s.writeEntity(buf, x)
	case *Entity:
		if x == nil {
			buf.PutByte(byte(TagNull))
			return nil
		}
		return s.writeEntity(buf, *x)
	default:
		return s.writeOther(buf, v)
	}
	return nil
}

// writeOther handles pointers to primitives and registered custom types.
func (s *Serializer) writeOther(buf *Buffer, v any) error {
	if e, ok := s.reg.lookupType(reflect.TypeOf(v)); ok {
		buf.PutByte(byte(TagCustom))
		if err := s.writeRef(buf, e); err != nil {
			return err
		}
		return e.codec.Encode(buf, v)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && isPrimitive(rv.Type().Elem().Kind()) {
		if rv.IsNil() {
			buf.PutByte(byte(TagNull))
			return nil
		}
		buf.PutByte(byte(TagPtr))
		return s.write(buf, rv.Elem().Interface())
	}
	return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

func isPrimitive(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func (s *Serializer) writeBlob(buf *Buffer, tag Tag, p []byte) {
	if t := s.opts.CompressThreshold; t > 0 && len(p) > t {
		dst := make([]byte, lz4.CompressBlockBound(len(p)))
		n, err := lz4.CompressBlock(p, dst, nil)
		if err == nil && n > 0 && n < len(p) {
			buf.PutByte(byte(TagCompressed))
			buf.PutByte(byte(tag))
			buf.PutUvarint(uint64(len(p)))
			buf.PutBytes(dst[:n])
			return
		}
	}
	buf.PutByte(byte(tag))
	buf.PutBytes(p)
}

func writeTime(buf *Buffer, t time.Time) {
	buf.PutUint64(uint64(t.UnixNano()))
	if t.Location() == time.UTC {
		buf.PutByte(0)
		return
	}
	_, offset := t.Zone()
	buf.PutByte(1)
	buf.PutUint32(uint32(int32(offset))) //nolint:gosec // G115: zone offsets fit in int32
}

func (s *Serializer) writeRef(buf *Buffer, e *entry) error {
	id, first, err := s.reg.ensureID(e)
	if err != nil {
		return err
	}
	if first && !s.canonical {
		buf.PutUvarint(0)
		buf.PutString(e.name)
		return nil
	}
	buf.PutUvarint(uint64(id))
	return nil
}

func (s *Serializer) writeEnum(buf *Buffer, x Enum) error {
	e, err := s.reg.lookupName(x.Type, kindEnum)
	if err != nil {
		return err
	}
	ord, ok := e.enumIndex[x.Value]
	if !ok {
		return fmt.Errorf("%w: enum %q has no value %q", ErrUnsupportedType, x.Type, x.Value)
	}
	buf.PutByte(byte(TagEnum))
	if err := s.writeRef(buf, e); err != nil {
		return err
	}
	buf.PutUvarint(uint64(ord))
	return nil
}

func (s *Serializer) writeEntity(buf *Buffer, x Entity) error {
	e, err := s.reg.lookupName(x.Type, kindEntity)
	if err != nil {
		return err
	}
	fields := e.entity.Fields()
	for name := range x.Values {
		if !contains(fields, name) {
			return fmt.Errorf("%w: entity %q has no field %q", ErrUnsupportedType, x.Type, name)
		}
	}
	buf.PutByte(byte(TagEntity))
	if err := s.writeRef(buf, e); err != nil {
		return err
	}
	buf.PutUvarint(uint64(len(e.entity.Versions) - 1))
	for _, f := range fields {
		if err := s.write(buf, x.Values[f]); err != nil {
			return fmt.Errorf("entity %q field %q: %w", x.Type, f, err)
		}
	}
	return nil
}

func (s *Serializer) read(buf *Buffer) (any, error) {
	b, err := buf.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag := Tag(b); tag {
	case TagNull:
		return nil, nil
	case TagBool:
		return buf.ReadBool()
	case TagInt8:
		v, err := buf.ReadByte()
		return int8(v), err
	case TagInt16:
		v, err := buf.ReadUint16()
		return int16(v), err
	case TagInt32:
		v, err := buf.ReadUint32()
		return int32(v), err
	case TagInt64:
		v, err := buf.ReadUint64()
		return int64(v), err
	case TagInt:
		v, err := buf.ReadUint64()
		return int(v), err
	case TagUint8:
		return buf.ReadByte()
	case TagUint16:
		return buf.ReadUint16()
	case TagUint32:
		return buf.ReadUint32()
	case TagUint64:
		return buf.ReadUint64()
	case TagUint:
		v, err := buf.ReadUint64()
		return uint(v), err
	case TagFloat32:
		return buf.ReadFloat32()
	case TagFloat64:
		return buf.ReadFloat64()
	case TagString:
		return buf.ReadString()
	case TagBytes:
		return buf.ReadBytes()
	case TagTime:
		return readTime(buf)
	case TagDuration:
		v, err := buf.ReadUint64()
		return time.Duration(v), err
	case TagPtr:
		v, err := s.read(buf)
		if err != nil {
			return nil, err
		}
		return pointerTo(v)
	case TagBoolSlice:
		return readSlice(buf, 1, (*Buffer).ReadBool)
	case TagInt32Slice:
		return readSlice(buf, 4, func(b *Buffer) (int32, error) {
			v, err := b.ReadUint32()
			return int32(v), err
		})
	case TagInt64Slice:
		return readSlice(buf, 8, func(b *Buffer) (int64, error) {
			v, err := b.ReadUint64()
			return int64(v), err
		})
	case TagIntSlice:
		return readSlice(buf, 8, func(b *Buffer) (int, error) {
			v, err := b.ReadUint64()
			return int(v), err
		})
	case TagFloat32Slice:
		return readSlice(buf, 4, (*Buffer).ReadFloat32)
	case TagFloat64Slice:
		return readSlice(buf, 8, (*Buffer).ReadFloat64)
	case TagStringSlice:
		return readSlice(buf, 1, (*Buffer).ReadString)
	case TagList:
		return readSlice(buf, 1, s.read)
	case TagStringMap:
		n, err := buf.ReadCount(2)
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, n)
		for range n {
			k, err := buf.ReadString()
			if err != nil {
				return nil, err
			}
			if m[k], err = s.read(buf); err != nil {
				return nil, err
			}
		}
		return m, nil
	case TagMap:
		n, err := buf.ReadCount(2)
		if err != nil {
			return nil, err
		}
		m := make(map[any]any, n)
		for range n {
			k, err := s.read(buf)
			if err != nil {
				return nil, err
			}
			if k != nil && !reflect.TypeOf(k).Comparable() {
				return nil, fmt.Errorf("%w: map key of type %T", ErrUnsupportedType, k)
			}
			if m[k], err = s.read(buf); err != nil {
				return nil, err
			}
		}
		return m, nil
	case TagEnum:
		return s.readEnum(buf)
	case TagEntity:
		return s.readEntity(buf)
	case TagCustom:
		e, err := s.readRef(buf, kindCustom)
		if err != nil {
			return nil, err
		}
		return e.codec.Decode(buf)
	case TagCompressed:
		return readCompressed(buf)
	default:
		return nil, fmt.Errorf("%w: %#x at offset %d", ErrUnknownTag, b, buf.off-1)
	}
}

func readSlice[T any](buf *Buffer, minSize int, fn func(*Buffer) (T, error)) ([]T, error) {
	n, err := buf.ReadCount(minSize)
	if err != nil {
		return nil, err
	}
	out := make([]T, n)
	for i := range out {
		if out[i], err = fn(buf); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readTime(buf *Buffer) (time.Time, error) {
	nanos, err := buf.ReadUint64()
	if err != nil {
		return time.Time{}, err
	}
	zone, err := buf.ReadByte()
	if err != nil {
		return time.Time{}, err
	}
	t := time.Unix(0, int64(nanos))
	if zone == 0 {
		return t.UTC(), nil
	}
	offset, err := buf.ReadUint32()
	if err != nil {
		return time.Time{}, err
	}
	return t.In(time.FixedZone("", int(int32(offset)))), nil
}

func readCompressed(buf *Buffer) (any, error) {
	inner, err := buf.ReadByte()
	if err != nil {
		return nil, err
	}
	raw, err := buf.ReadUvarint()
	if err != nil {
		return nil, err
	}
	block, err := buf.ReadCount(1)
	if err != nil {
		return nil, err
	}
	src, err := buf.ReadRaw(block)
	if err != nil {
		return nil, err
	}
	if raw > math.MaxInt32 {
		return nil, fmt.Errorf("%w: compressed length %d", ErrBufferUnderflow, raw)
	}
	dst := make([]byte, raw)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil || uint64(n) != raw {
		return nil, &SerializationError{Pos: int64(buf.off), Expected: raw, Actual: uint64(n), Reason: "corrupt lz4 block"} //nolint:gosec // G115
	}
	switch Tag(inner) {
	case TagString:
		return string(dst), nil
	case TagBytes:
		return dst, nil
	default:
		return nil, fmt.Errorf("%w: compressed %s", ErrUnknownTag, Tag(inner))
	}
}

func (s *Serializer) readRef(buf *Buffer, kind entryKind) (*entry, error) {
	ref, err := buf.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if ref == 0 {
		name, err := buf.ReadString()
		if err != nil {
			return nil, err
		}
		e, err := s.reg.lookupName(name, kind)
		if err != nil {
			return nil, err
		}
		if _, _, err := s.reg.ensureID(e); err != nil {
			return nil, err
		}
		return e, nil
	}
	if ref > math.MaxUint32 {
		return nil, fmt.Errorf("%w: id %d", ErrUnregisteredType, ref)
	}
	e, err := s.reg.lookupID(uint32(ref))
	if err != nil {
		return nil, err
	}
	if e.kind != kind {
		return nil, fmt.Errorf("%w: id %d is %q, not a %s", ErrUnregisteredType, ref, e.name, kindTag(kind))
	}
	return e, nil
}

func kindTag(k entryKind) Tag {
	switch k {
	case kindEnum:
		return TagEnum
	case kindEntity:
		return TagEntity
	default:
		return TagCustom
	}
}

func (s *Serializer) readEnum(buf *Buffer) (any, error) {
	e, err := s.readRef(buf, kindEnum)
	if err != nil {
		return nil, err
	}
	ord, err := buf.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if ord >= uint64(len(e.enumValues)) {
		return nil, fmt.Errorf("%w: enum %q ordinal %d", ErrUnsupportedType, e.name, ord)
	}
	return Enum{Type: e.name, Value: e.enumValues[ord]}, nil
}

func (s *Serializer) readEntity(buf *Buffer) (any, error) {
	e, err := s.readRef(buf, kindEntity)
	if err != nil {
		return nil, err
	}
	version, err := buf.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if version >= uint64(len(e.entity.Versions)) {
		return nil, fmt.Errorf("%w: entity %q version %d", ErrUnsupportedType, e.name, version)
	}

	values := make(map[string]any, len(e.entity.Fields()))
	for _, f := range e.entity.Fields() {
		values[f] = nil
	}
	for _, f := range e.entity.Versions[version] {
		if values[f], err = s.read(buf); err != nil {
			return nil, fmt.Errorf("entity %q field %q: %w", e.name, f, err)
		}
	}
	return Entity{Type: e.name, Values: values}, nil
}
