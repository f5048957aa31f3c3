package grant

import "fmt"

// Level is the totally ordered access level attached to a grant.
type Level string

const (
	LevelRead  Level = "read"
	LevelWrite Level = "write"
	LevelAdmin Level = "admin"
	LevelOwner Level = "owner"
)

var levelRanks = map[Level]int{
	LevelRead:  1,
	LevelWrite: 2,
	LevelAdmin: 3,
	LevelOwner: 4,
}

func (l Level) Valid() bool {
	_, ok := levelRanks[l]
	return ok
}

func (l Level) Rank() int {
	return levelRanks[l]
}

// AtLeast reports whether l grants everything other does.
func (l Level) AtLeast(other Level) bool {
	return levelRanks[l] >= levelRanks[other]
}

func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if !l.Valid() {
		return "", fmt.Errorf("invalid permission level: %q", s)
	}
	return l, nil
}
