package wire

import (
	"encoding/binary"
	"math"
	"strings"

	"mavgo/pkg/schema"
)

// putRaw serialises a single field's raw (not enum-resolved) value into dst,
// which must already be exactly field.Size bytes.
func putRaw(f *schema.Field, value any, dst []byte) error {
	if f.IsString() {
		s, ok := value.(string)
		if !ok {
			return &EncodeError{Field: f.Name, Msg: "expected string value"}
		}
		b := []byte(s)
		if len(b) > len(dst) {
			b = b[:len(dst)]
		}
		copy(dst, b)
		for i := len(b); i < len(dst); i++ {
			dst[i] = 0
		}
		return nil
	}

	if f.IsVector() {
		values, err := toSlice(value)
		if err != nil {
			return &EncodeError{Field: f.Name, Msg: err.Error()}
		}
		if len(values) != f.Count {
			return &EncodeError{Field: f.Name, Msg: "wrong element count"}
		}
		for i, v := range values {
			if err := putScalar(f, v, dst[i*f.ElemSize:(i+1)*f.ElemSize]); err != nil {
				return err
			}
		}
		return nil
	}

	return putScalar(f, value, dst)
}

func putScalar(f *schema.Field, value any, dst []byte) error {
	switch f.Kind {
	case schema.KindInt8, schema.KindUint8:
		v, err := toInt64(value)
		if err != nil {
			return &EncodeError{Field: f.Name, Msg: err.Error()}
		}
		dst[0] = byte(v)
	case schema.KindInt16, schema.KindUint16:
		v, err := toInt64(value)
		if err != nil {
			return &EncodeError{Field: f.Name, Msg: err.Error()}
		}
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case schema.KindInt32, schema.KindUint32:
		v, err := toInt64(value)
		if err != nil {
			return &EncodeError{Field: f.Name, Msg: err.Error()}
		}
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case schema.KindInt64, schema.KindUint64:
		v, err := toInt64(value)
		if err != nil {
			return &EncodeError{Field: f.Name, Msg: err.Error()}
		}
		binary.LittleEndian.PutUint64(dst, uint64(v))
	case schema.KindFloat32:
		v, err := toFloat64(value)
		if err != nil {
			return &EncodeError{Field: f.Name, Msg: err.Error()}
		}
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
	case schema.KindFloat64:
		v, err := toFloat64(value)
		if err != nil {
			return &EncodeError{Field: f.Name, Msg: err.Error()}
		}
		binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
	default:
		return &EncodeError{Field: f.Name, Msg: "unsupported kind"}
	}
	return nil
}

// getRaw decodes a single field's raw value from src, which must be exactly
// field.Size bytes (already right-padded by the caller if truncated).
func getRaw(f *schema.Field, src []byte) any {
	if f.IsString() {
		s := string(src)
		if idx := strings.IndexByte(s, 0); idx >= 0 {
			s = s[:idx]
		}
		return s
	}

	if f.IsVector() {
		out := make([]any, f.Count)
		for i := range out {
			out[i] = getScalar(f, src[i*f.ElemSize:(i+1)*f.ElemSize])
		}
		return out
	}

	return getScalar(f, src)
}

func getScalar(f *schema.Field, src []byte) any {
	switch f.Kind {
	case schema.KindInt8:
		return int8(src[0])
	case schema.KindUint8:
		return uint8(src[0])
	case schema.KindInt16:
		return int16(binary.LittleEndian.Uint16(src))
	case schema.KindUint16:
		return binary.LittleEndian.Uint16(src)
	case schema.KindInt32:
		return int32(binary.LittleEndian.Uint32(src))
	case schema.KindUint32:
		return binary.LittleEndian.Uint32(src)
	case schema.KindInt64:
		return int64(binary.LittleEndian.Uint64(src))
	case schema.KindUint64:
		return binary.LittleEndian.Uint64(src)
	case schema.KindFloat32:
		return math.Float32frombits(binary.LittleEndian.Uint32(src))
	case schema.KindFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(src))
	default:
		return nil
	}
}

func toSlice(value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case []int64:
		out := make([]any, len(v))
		for i, x := range v {
			out[i] = x
		}
		return out, nil
	case []float64:
		out := make([]any, len(v))
		for i, x := range v {
			out[i] = x
		}
		return out, nil
	default:
		return nil, &EncodeError{Msg: "expected a slice of element values"}
	}
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, &EncodeError{Msg: "expected an integer value"}
	}
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	default:
		return 0, &EncodeError{Msg: "expected a numeric value"}
	}
}
