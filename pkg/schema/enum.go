package schema

// Entry is one named value inside an Enum.
type Entry struct {
	Name        string
	Value       int64
	Description string
	Params      []string
}

// Enum is a MAVLink enumeration: an ordered list of named integer values.
// Enums loaded under the same name from separate dialect files are merged
// by appending entries, never by replacing or deduplicating them.
type Enum struct {
	Name        string
	Description string
	Entries     []Entry

	byName  map[string]*Entry
	byValue map[int64]*Entry
}

func newEnum(name, description string) *Enum {
	return &Enum{
		Name:        name,
		Description: description,
		byName:      make(map[string]*Entry),
		byValue:     make(map[int64]*Entry),
	}
}

func (e *Enum) addEntry(entry Entry) {
	e.Entries = append(e.Entries, entry)
	stored := &e.Entries[len(e.Entries)-1]
	e.byName[entry.Name] = stored
	if _, exists := e.byValue[entry.Value]; !exists {
		e.byValue[entry.Value] = stored
	}
}

// EntryByName looks up an entry by its symbolic name.
func (e *Enum) EntryByName(name string) (*Entry, bool) {
	entry, ok := e.byName[name]
	return entry, ok
}

// EntryByValue looks up an entry by its numeric value. When multiple entries
// share a value (possible after a merge) the first one loaded wins.
func (e *Enum) EntryByValue(value int64) (*Entry, bool) {
	entry, ok := e.byValue[value]
	return entry, ok
}

// DecodeBitmask returns the names of every entry whose value, treated as a
// single set bit, is present in the input.
func (e *Enum) DecodeBitmask(value uint64) []string {
	var names []string
	for _, entry := range e.Entries {
		bit := uint64(entry.Value)
		if bit == 0 {
			continue
		}
		if value&bit == bit {
			names = append(names, entry.Name)
		}
	}
	return names
}

func (e *Enum) merge(other *Enum) {
	for _, entry := range other.Entries {
		e.addEntry(entry)
	}
}
