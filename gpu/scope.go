package gpu

// Scope releases handles in reverse order of acquisition unless Keep is called.
//
//	scope := &Scope{}
//	defer scope.Release()
//	...
//	scope.Keep()
type Scope struct {
	releases []func()
	kept     bool
}

func (s *Scope) Add(release func()) {
	s.releases = append(s.releases, release)
}

// Keep hands ownership of everything added so far to the caller.
func (s *Scope) Keep() {
	s.kept = true
}

func (s *Scope) Release() {
	if s.kept {
		return
	}
	for i := len(s.releases) - 1; i >= 0; i-- {
		s.releases[i]()
	}
	s.releases = nil
}
