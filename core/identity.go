package core

import "fmt"

// Identity is the author recorded on journal commits.
type Identity struct {
	Name  string
	Email string
}

func (identity Identity) String() string {
	return fmt.Sprintf("%s <%s>", identity.Name, identity.Email)
}
