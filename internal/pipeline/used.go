package pipeline

// UsedArtifacts is an ordered set of artifact file names.
// The zero value is ready to use.
type UsedArtifacts struct {
	names []string
	seen  map[string]struct{}
}

// Add records name unless it is already present.
func (u *UsedArtifacts) Add(name string) {
	if _, ok := u.seen[name]; ok {
		return
	}
	if u.seen == nil {
		u.seen = make(map[string]struct{})
	}
	u.seen[name] = struct{}{}
	u.names = append(u.names, name)
}

// Merge appends the names of o not yet present, keeping o's order.
func (u *UsedArtifacts) Merge(o *UsedArtifacts) {
	if o == nil {
		return
	}
	for _, n := range o.names {
		u.Add(n)
	}
}

// Names returns the names in first-seen order.
func (u *UsedArtifacts) Names() []string {
	return append([]string(nil), u.names...)
}

// Len returns the number of names.
func (u *UsedArtifacts) Len() int { return len(u.names) }
