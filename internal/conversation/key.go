package conversation

// Key canonically identifies the thread between two players: the pair is
// stored sorted so (A,B) and (B,A) name the same thread.
type Key [2]string

func KeyFor(a, b string) Key {
	if a > b {
		a, b = b, a
	}
	return Key{a, b}
}

// Other returns the counterpart for the given participant.
func (k Key) Other(self string) string {
	if k[0] == self {
		return k[1]
	}
	return k[0]
}
