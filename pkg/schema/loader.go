package schema

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Load parses every *.xml file matching the glob pattern (typically
// "<dir>/*.xml") and builds an immutable Registry. Files are read in
// whatever order Glob returns them; enums with a name already present in
// the registry have their entries appended, never replaced. Loading fails
// fast on malformed XML, an unresolvable field type, a duplicate message
// id, or a missing required attribute.
func Load(globPattern string) (*Registry, error) {
	paths, err := filepath.Glob(globPattern)
	if err != nil {
		return nil, wrapf(globPattern, err, "glob dialect files")
	}
	if len(paths) == 0 {
		return nil, errf(globPattern, "no dialect files matched")
	}
	sort.Strings(paths)

	reg := newRegistry()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, wrapf(path, err, "read dialect file")
		}
		if err := parseDocument(path, data, reg); err != nil {
			return nil, err
		}
	}

	if err := reg.resolveEnumBindings(); err != nil {
		return nil, wrapf("", err, "resolve enum bindings")
	}
	return reg, nil
}

// LoadFiles is like Load but takes an explicit list of file paths instead of
// a glob pattern, for callers (and tests) that already have the file set.
func LoadFiles(paths []string) (*Registry, error) {
	reg := newRegistry()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, wrapf(path, err, "read dialect file")
		}
		if err := parseDocument(path, data, reg); err != nil {
			return nil, err
		}
	}
	if err := reg.resolveEnumBindings(); err != nil {
		return nil, wrapf("", err, "resolve enum bindings")
	}
	return reg, nil
}

func parseDocument(path string, data []byte, reg *Registry) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return wrapf(path, err, "parse xml")
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "enum":
			enum, err := parseEnum(dec, start)
			if err != nil {
				return wrapf(path, err, "parse enum")
			}
			reg.addEnum(enum)
		case "message":
			msg, err := parseMessage(dec, start)
			if err != nil {
				return wrapf(path, err, "parse message")
			}
			if err := reg.addMessage(msg); err != nil {
				return wrapf(path, err, "register message")
			}
		}
	}
}

func attr(start xml.StartElement, name string) (string, bool) {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func requireAttr(start xml.StartElement, name string) (string, error) {
	v, ok := attr(start, name)
	if !ok || v == "" {
		return "", errf("", "<%s> missing required attribute %q", start.Name.Local, name)
	}
	return v, nil
}

// readCharData reads text content up to the matching end element for an
// element that is known to hold only character data (no child elements).
func readCharData(dec *xml.Decoder, start xml.StartElement) (string, error) {
	var buf bytes.Buffer
	depth := 1
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.Write(t)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				return buf.String(), nil
			}
		}
	}
}

type rawParam struct {
	index int
	text  string
}

func parseEnum(dec *xml.Decoder, start xml.StartElement) (*Enum, error) {
	name, err := requireAttr(start, "name")
	if err != nil {
		return nil, err
	}

	enum := newEnum(name, "")
	depth := 1
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "description":
				text, err := readCharData(dec, t)
				if err != nil {
					return nil, err
				}
				enum.Description = text
			case "entry":
				entry, err := parseEntry(dec, t)
				if err != nil {
					return nil, err
				}
				enum.addEntry(entry)
			default:
				depth++
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return enum, nil
			}
			if depth > 1 {
				depth--
			}
		}
	}
}

func parseEntry(dec *xml.Decoder, start xml.StartElement) (Entry, error) {
	name, err := requireAttr(start, "name")
	if err != nil {
		return Entry{}, err
	}
	valueStr, err := requireAttr(start, "value")
	if err != nil {
		return Entry{}, err
	}
	var value int64
	if _, scanErr := fmt.Sscanf(valueStr, "%v", &value); scanErr != nil {
		parsed, parseErr := parseEntryValue(valueStr)
		if parseErr != nil {
			return Entry{}, errf("", "entry %q has invalid value %q", name, valueStr)
		}
		value = parsed
	}

	entry := Entry{Name: name, Value: value}
	var params []rawParam

	depth := 1
	for {
		tok, err := dec.Token()
		if err != nil {
			return Entry{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "description":
				text, err := readCharData(dec, t)
				if err != nil {
					return Entry{}, err
				}
				entry.Description = text
			case "param":
				idxStr, _ := attr(t, "index")
				idx := 0
				fmt.Sscanf(idxStr, "%d", &idx)
				text, err := readCharData(dec, t)
				if err != nil {
					return Entry{}, err
				}
				params = append(params, rawParam{index: idx, text: text})
			default:
				depth++
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				sort.SliceStable(params, func(i, j int) bool { return params[i].index < params[j].index })
				entry.Params = make([]string, len(params))
				for i, p := range params {
					entry.Params[i] = p.text
				}
				return entry, nil
			}
			if depth > 1 {
				depth--
			}
		}
	}
}

func parseEntryValue(s string) (int64, error) {
	var v int64
	_, err := fmt.Sscanf(s, "0x%x", &v)
	if err == nil {
		return v, nil
	}
	_, err = fmt.Sscanf(s, "%d", &v)
	return v, err
}

func parseMessage(dec *xml.Decoder, start xml.StartElement) (*Message, error) {
	name, err := requireAttr(start, "name")
	if err != nil {
		return nil, err
	}
	idStr, err := requireAttr(start, "id")
	if err != nil {
		return nil, err
	}
	var id uint32
	if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
		return nil, errf("", "message %q has invalid id %q", name, idStr)
	}

	msg := &Message{Name: name, ID: id}
	inExtensions := false

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "description":
				text, err := readCharData(dec, t)
				if err != nil {
					return nil, err
				}
				msg.Description = text
			case "extensions":
				inExtensions = true
				if err := skipElement(dec); err != nil {
					return nil, err
				}
			case "field":
				field, err := parseField(dec, t)
				if err != nil {
					return nil, wrapf("", err, "message %q", name)
				}
				if inExtensions {
					msg.FieldExtensions = append(msg.FieldExtensions, field)
				} else {
					msg.Fields = append(msg.Fields, field)
				}
			default:
				if err := skipElement(dec); err != nil {
					return nil, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return msg, nil
			}
		}
	}
}

// skipElement consumes tokens through the matching end element for an
// element already opened by the most recent StartElement token (self-closed
// elements, like <extensions/>, return immediately with no further tokens
// to skip; the decoder already reports them as a paired Start/End).
func skipElement(dec *xml.Decoder) error {
	depth := 1
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
}

func parseField(dec *xml.Decoder, start xml.StartElement) (Field, error) {
	name, err := requireAttr(start, "name")
	if err != nil {
		return Field{}, err
	}
	typ, err := requireAttr(start, "type")
	if err != nil {
		return Field{}, err
	}

	field := Field{Name: name, Type: typ}
	if enumName, ok := attr(start, "enum"); ok {
		field.EnumName = enumName
	}
	if display, ok := attr(start, "display"); ok {
		field.Display = display
	}
	if pf, ok := attr(start, "print_format"); ok {
		field.PrintFormat = pf
	}
	if units, ok := attr(start, "units"); ok {
		field.Units = units
	}

	text, err := readCharData(dec, start)
	if err != nil {
		return Field{}, err
	}
	field.Description = text

	kind, count, elemSize, size, err := resolveFieldType(typ)
	if err != nil {
		return Field{}, wrapf("", err, "field %q", name)
	}
	field.Kind = kind
	field.Count = count
	field.ElemSize = elemSize
	field.Size = size

	return field, nil
}
