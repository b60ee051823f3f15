package codec

// Tag is the leading byte of every encoded value.
type Tag byte

// Built-in tags. Values are persisted and must never be renumbered.
const (
	TagNull Tag = iota
	TagBool
	TagInt8
	TagInt16
	TagInt32
	TagInt64
	TagInt
	TagUint8
	TagUint16
	TagUint32
	TagUint64
	TagUint
	TagFloat32
	TagFloat64
	TagString
	TagBytes
	TagTime
	TagDuration
	TagPtr

	TagBoolSlice
	TagInt32Slice
	TagInt64Slice
	TagIntSlice
	TagFloat32Slice
	TagFloat64Slice
	TagStringSlice

	TagList
	TagStringMap
	TagMap

	TagEnum
	TagEntity
	TagCustom
	TagCompressed
)

// FirstDynamicID is the first id handed out to registered types. Lower ids
// are reserved for built-in tags.
const FirstDynamicID = 100

var tagNames = [...]string{
	TagNull:         "null",
	TagBool:         "bool",
	TagInt8:         "int8",
	TagInt16:        "int16",
	TagInt32:        "int32",
	TagInt64:        "int64",
	TagInt:          "int",
	TagUint8:        "uint8",
	TagUint16:       "uint16",
	TagUint32:       "uint32",
	TagUint64:       "uint64",
	TagUint:         "uint",
	TagFloat32:      "float32",
	TagFloat64:      "float64",
	TagString:       "string",
	TagBytes:        "bytes",
	TagTime:         "time",
	TagDuration:     "duration",
	TagPtr:          "ptr",
	TagBoolSlice:    "[]bool",
	TagInt32Slice:   "[]int32",
	TagInt64Slice:   "[]int64",
	TagIntSlice:     "[]int",
	TagFloat32Slice: "[]float32",
	TagFloat64Slice: "[]float64",
	TagStringSlice:  "[]string",
	TagList:         "list",
	TagStringMap:    "map[string]",
	TagMap:          "map",
	TagEnum:         "enum",
	TagEntity:       "entity",
	TagCustom:       "custom",
	TagCompressed:   "compressed",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) && tagNames[t] != "" {
		return tagNames[t]
	}
	return "unknown"
}
