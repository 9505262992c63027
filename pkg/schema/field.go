package schema

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind is the primitive wire kind of a field's elements.
type Kind int

const (
	KindInt8 Kind = iota
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindChar
)

// ElemSize returns the encoded size, in bytes, of a single element of this kind.
func (k Kind) ElemSize() int {
	switch k {
	case KindInt8, KindUint8, KindChar:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32:
		return 4
	case KindInt64, KindUint64, KindFloat64:
		return 8
	default:
		return 0
	}
}

// Signed reports whether the kind is a signed integer type. Floats and char
// report false; callers should not branch on signedness for those kinds.
func (k Kind) Signed() bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	default:
		return false
	}
}

var typePattern = regexp.MustCompile(
	`^(?P<schar>u)?(?P<base>int8|int16|int32|int64|char|float|double)(_t)?(\[(?P<count>\d+)\])?$`,
)

// Field is a single member of a Message, with its derived wire layout
// resolved once at load time.
type Field struct {
	Name        string
	Type        string // original XML type string, including any _mavlink_version suffix
	EnumName    string // "" if not enum-bound
	Display     string // "bitmask" or ""
	PrintFormat string
	Units       string
	Description string

	Kind     Kind
	Count    int // element count; char[N] reports N but decodes as one string
	ElemSize int
	Size     int // ElemSize * Count

	enum *Enum // resolved lazily by the registry after all enums are loaded
}

// IsString reports whether the field is a zero-terminated char[N] string
// rather than a vector of primitive elements.
func (f *Field) IsString() bool {
	return f.Kind == KindChar
}

// IsVector reports whether the field carries more than one primitive element
// (and is not the char[N] string special case).
func (f *Field) IsVector() bool {
	return f.Count > 1 && f.Kind != KindChar
}

// Enum returns the resolved enum this field is bound to, if any.
func (f *Field) Enum() (*Enum, bool) {
	if f.enum == nil {
		return nil, false
	}
	return f.enum, true
}

// resolveFieldType parses a MAVLink field type string such as "uint32_t",
// "float[4]", "char[16]", or "uint8_t_mavlink_version" into its primitive
// kind, element count, and sizes. The _mavlink_version suffix is stripped
// before matching.
func resolveFieldType(raw string) (kind Kind, count, elemSize, size int, err error) {
	stripped := strings.TrimSuffix(raw, "_mavlink_version")

	m := typePattern.FindStringSubmatch(stripped)
	if m == nil {
		return 0, 0, 0, 0, errf("", "invalid type %q", raw)
	}

	groups := make(map[string]string, len(m))
	for i, name := range typePattern.SubexpNames() {
		if name == "" {
			continue
		}
		groups[name] = m[i]
	}

	signed := groups["schar"] != "u"
	base := groups["base"]

	switch base {
	case "int8":
		kind = KindInt8
	case "int16":
		kind = KindInt16
	case "int32":
		kind = KindInt32
	case "int64":
		kind = KindInt64
	case "char":
		kind = KindChar
	case "float":
		kind = KindFloat32
	case "double":
		kind = KindFloat64
	default:
		return 0, 0, 0, 0, errf("", "invalid type %q", raw)
	}
	if !signed {
		switch kind {
		case KindInt8:
			kind = KindUint8
		case KindInt16:
			kind = KindUint16
		case KindInt32:
			kind = KindUint32
		case KindInt64:
			kind = KindUint64
		}
	}

	count = 1
	if countRaw := groups["count"]; countRaw != "" {
		n, convErr := strconv.Atoi(countRaw)
		if convErr != nil || n <= 0 {
			return 0, 0, 0, 0, errf("", "invalid array count in type %q", raw)
		}
		count = n
	}

	elemSize = kind.ElemSize()
	size = elemSize * count
	return kind, count, elemSize, size, nil
}

// canonicalTypeName strips the _mavlink_version suffix and any [N] array
// suffix, leaving the type string exactly as written in the XML (e.g.
// "uint8_t", "float"). This is what feeds the crc-extra accumulator.
func canonicalTypeName(raw string) string {
	stripped := strings.TrimSuffix(raw, "_mavlink_version")
	if idx := strings.IndexByte(stripped, '['); idx >= 0 {
		stripped = stripped[:idx]
	}
	return stripped
}
