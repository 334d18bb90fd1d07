package migrations

import (
	stderrors "errors"

	"github.com/kyleking/schemasync/internal/errors"
)

// Visitor is implemented once per backend. Adding a step kind adds a method
// here, so every executor fails to compile until it handles the new kind.
type Visitor interface {
	VisitCreateTable(step CreateTable) error
	VisitAddColumns(step AddColumns) error
	VisitDestroyColumn(step DestroyColumn) error
	VisitRenameColumn(step RenameColumn) error
	VisitDestroyTable(step DestroyTable) error
	VisitMakeColumnOptional(step MakeColumnOptional) error
	VisitMakeColumnRequired(step MakeColumnRequired) error
	VisitAddColumnIndex(step AddColumnIndex) error
	VisitRemoveColumnIndex(step RemoveColumnIndex) error
	VisitRawSQL(step RawSQL) error
}

// Dispatch routes step to the matching Visitor method
func Dispatch(v Visitor, step Step) error {
	switch s := step.(type) {
	case CreateTable:
		return v.VisitCreateTable(s)
	case AddColumns:
		return v.VisitAddColumns(s)
	case DestroyColumn:
		return v.VisitDestroyColumn(s)
	case RenameColumn:
		return v.VisitRenameColumn(s)
	case DestroyTable:
		return v.VisitDestroyTable(s)
	case MakeColumnOptional:
		return v.VisitMakeColumnOptional(s)
	case MakeColumnRequired:
		return v.VisitMakeColumnRequired(s)
	case AddColumnIndex:
		return v.VisitAddColumnIndex(s)
	case RemoveColumnIndex:
		return v.VisitRemoveColumnIndex(s)
	case RawSQL:
		return v.VisitRawSQL(s)
	default:
		return errors.NewUnknownStepError(KindOf(step))
	}
}

// IsKnownStep reports whether Dispatch routes step to a Visitor method.
// Pointers to step values satisfy Step but are not dispatched.
func IsKnownStep(step Step) bool {
	return step != nil && Dispatch(acceptVisitor{}, step) == nil
}

type acceptVisitor struct{}

func (acceptVisitor) VisitCreateTable(CreateTable) error               { return nil }
func (acceptVisitor) VisitAddColumns(AddColumns) error                 { return nil }
func (acceptVisitor) VisitDestroyColumn(DestroyColumn) error           { return nil }
func (acceptVisitor) VisitRenameColumn(RenameColumn) error             { return nil }
func (acceptVisitor) VisitDestroyTable(DestroyTable) error             { return nil }
func (acceptVisitor) VisitMakeColumnOptional(MakeColumnOptional) error { return nil }
func (acceptVisitor) VisitMakeColumnRequired(MakeColumnRequired) error { return nil }
func (acceptVisitor) VisitAddColumnIndex(AddColumnIndex) error         { return nil }
func (acceptVisitor) VisitRemoveColumnIndex(RemoveColumnIndex) error   { return nil }
func (acceptVisitor) VisitRawSQL(RawSQL) error                         { return nil }

// DispatchAll applies steps in order and stops at the first failure
func DispatchAll(v Visitor, steps []Step) error {
	for i, step := range steps {
		if err := Dispatch(v, step); err != nil {
			var typed *errors.Error
			if stderrors.As(err, &typed) {
				return err
			}

			return errors.Wrapf(err, errors.ErrTypeDatabase, "migration step %d (%s) failed", i, KindOf(step))
		}
	}

	return nil
}
