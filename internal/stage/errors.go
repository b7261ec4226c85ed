package stage

import "fmt"

// StructuralError is a programming error in a game plugin: a composite asking for a child
// kind it never declared, or an event delivered to a stage that already checked out. It is
// raised as a panic by Fail and recovered at the match boundary, which aborts that match only.
type StructuralError struct {
	Stage string
	Msg   string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("stage %q: %s", e.Stage, e.Msg)
}

// Fail raises a StructuralError for the named stage.
func Fail(stage string, format string, args ...interface{}) {
	panic(&StructuralError{Stage: stage, Msg: fmt.Sprintf(format, args...)})
}
