package dialogue

// Role identifies which host speaks a turn.
type Role string

const (
	RoleMale   Role = "M"
	RoleFemale Role = "F"
)

// Turn is one utterance in the generated conversation. IDs are contiguous
// from 1 over the whole dialogue.
type Turn struct {
	ID      int
	Speaker Role
	Text    string
}

// Renumber rewrites turn ids to be contiguous from 1 in slice order.
func Renumber(turns []Turn) {
	for i := range turns {
		turns[i].ID = i + 1
	}
}
