package schema

// Registry is the immutable, process-wide (or per-test) set of enums and
// messages built by Load. It is never a package-level singleton: callers
// construct one explicitly and pass it into a connection, per spec.md's own
// resolution of the global-vs-explicit-handle open question.
type Registry struct {
	Enums        map[string]*Enum
	Messages     map[string]*Message
	MessagesByID map[uint32]*Message
}

func newRegistry() *Registry {
	return &Registry{
		Enums:        make(map[string]*Enum),
		Messages:     make(map[string]*Message),
		MessagesByID: make(map[uint32]*Message),
	}
}

// EnumByName looks up a loaded enum.
func (r *Registry) EnumByName(name string) (*Enum, bool) {
	e, ok := r.Enums[name]
	return e, ok
}

// MessageByName looks up a loaded message by its symbolic name.
func (r *Registry) MessageByName(name string) (*Message, bool) {
	m, ok := r.Messages[name]
	return m, ok
}

// MessageByID looks up a loaded message by its numeric id.
func (r *Registry) MessageByID(id uint32) (*Message, bool) {
	m, ok := r.MessagesByID[id]
	return m, ok
}

func (r *Registry) addEnum(e *Enum) {
	if existing, ok := r.Enums[e.Name]; ok {
		existing.merge(e)
		return
	}
	r.Enums[e.Name] = e
}

func (r *Registry) addMessage(m *Message) error {
	if _, dup := r.Messages[m.Name]; dup {
		return errf("", "duplicate message name %q", m.Name)
	}
	if _, dup := r.MessagesByID[m.ID]; dup {
		return errf("", "duplicate message id %d (%q)", m.ID, m.Name)
	}
	r.Messages[m.Name] = m
	r.MessagesByID[m.ID] = m
	return nil
}

// resolveEnumBindings links every field's EnumName to its loaded *Enum and
// recomputes each message's derived data. Run once, after every document in
// a dialect set has been parsed and every enum merge has happened — a field
// bound to an enum declared in a different file than its message must still
// resolve.
func (r *Registry) resolveEnumBindings() error {
	for _, m := range r.Messages {
		if err := resolveFieldsEnums(r, m.Fields); err != nil {
			return wrapf("", err, "message %q", m.Name)
		}
		if err := resolveFieldsEnums(r, m.FieldExtensions); err != nil {
			return wrapf("", err, "message %q", m.Name)
		}
		m.finalize()
	}
	return nil
}

func resolveFieldsEnums(r *Registry, fields []Field) error {
	for i := range fields {
		if fields[i].EnumName == "" {
			continue
		}
		e, ok := r.EnumByName(fields[i].EnumName)
		if !ok {
			return errf("", "field %q references unknown enum %q", fields[i].Name, fields[i].EnumName)
		}
		fields[i].enum = e
	}
	return nil
}
