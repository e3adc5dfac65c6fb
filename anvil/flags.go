package anvil

// Flags is the ordered command line of the node. A flag name occurs at most once;
// flags that take a value occupy two consecutive tokens.
//
// Flags does not validate names or values. The node rejects what it doesn't
// understand, which surfaces as a startup failure.
type Flags struct {
	entries []flagEntry
}

type flagEntry struct {
	name     string
	value    string
	hasValue bool
}

// NewFlags creates an empty flag list.
func NewFlags() *Flags {
	return new(Flags)
}

// Set sets a flag that takes a value. If the flag is already present its value
// is overwritten in place, otherwise the flag is appended. A flag that was set
// without value gets the value right behind it.
func (f *Flags) Set(name, value string) {
	if i := f.index(name); i >= 0 {
		f.entries[i].value, f.entries[i].hasValue = value, true
		return
	}
	f.entries = append(f.entries, flagEntry{name: name, value: value, hasValue: true})
}

// SetPresence appends a flag without value unless it is already present.
func (f *Flags) SetPresence(name string) {
	if f.index(name) < 0 {
		f.entries = append(f.entries, flagEntry{name: name})
	}
}

// Has reports whether the flag is present.
func (f *Flags) Has(name string) bool {
	return f.index(name) >= 0
}

// Value returns the value of a flag. The boolean is false if the flag is absent or
// has no value.
func (f *Flags) Value(name string) (string, bool) {
	i := f.index(name)
	if i < 0 || !f.entries[i].hasValue {
		return "", false
	}
	return f.entries[i].value, true
}

// Args returns the command line tokens.
func (f *Flags) Args() []string {
	args := make([]string, 0, 2*len(f.entries))
	for _, e := range f.entries {
		args = append(args, e.name)
		if e.hasValue {
			args = append(args, e.value)
		}
	}
	return args
}

// Len returns the number of tokens.
func (f *Flags) Len() int {
	n := len(f.entries)
	for _, e := range f.entries {
		if e.hasValue {
			n++
		}
	}
	return n
}

// Clone returns an independent copy.
func (f *Flags) Clone() *Flags {
	return &Flags{entries: append([]flagEntry(nil), f.entries...)}
}

func (f *Flags) index(name string) int {
	for i, e := range f.entries {
		if e.name == name {
			return i
		}
	}
	return -1
}
