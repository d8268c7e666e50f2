package entity

import "fmt"

// TransitionError reports an illegal status change on a billing entity.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %q to %q", e.Entity, e.From, e.To)
}

func checkTransition[S ~string](entityName string, table map[S][]S, from, to S) error {
	for _, allowed := range table[from] {
		if allowed == to {
			return nil
		}
	}
	return &TransitionError{Entity: entityName, From: string(from), To: string(to)}
}
