package cache

// SetRename swaps the rename hook for the duration of a test.
func SetRename(fn func(string, string) error) (restore func()) {
	prev := osRename
	osRename = fn
	return func() { osRename = prev }
}
