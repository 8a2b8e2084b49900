package models

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var legalRequirementMoves = map[[2]RequirementStatus]bool{
	{RequirementStatusTodo, RequirementStatusInProgress}: true,
	{RequirementStatusInProgress, RequirementStatusTodo}: true,
	{RequirementStatusInProgress, RequirementStatusDone}: true,
}

func genRequirementStatus() gopter.Gen {
	return gen.OneConstOf(RequirementStatusTodo, RequirementStatusInProgress, RequirementStatusDone)
}

func genProjectStatus() gopter.Gen {
	return gen.OneConstOf(ProjectStatusActive, ProjectStatusClosed, ProjectStatusArchived)
}

// **Feature: requirement-workflow, Property 1: Status transitions follow the table**
// For any pair of requirement statuses, ChangeStatus succeeds and returns the
// target exactly when the pair is listed in the transition table.
func TestPropertyRequirementStatusTransitions(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("legal moves succeed and illegal moves fail", prop.ForAll(
		func(from, to RequirementStatus) bool {
			got, err := from.ChangeStatus(to)
			if legalRequirementMoves[[2]RequirementStatus{from, to}] {
				return err == nil && got == to
			}
			return errors.Is(err, ErrInvalidStatusTransition) && got == from
		},
		genRequirementStatus(),
		genRequirementStatus(),
	))

	properties.TestingRun(t)
}

// **Feature: requirement-workflow, Property 2: Done is terminal**
// For any status, a requirement in DONE cannot move to it.
func TestPropertyDoneIsTerminal(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("done rejects every move", prop.ForAll(
		func(to RequirementStatus) bool {
			_, err := RequirementStatusDone.ChangeStatus(to)
			return errors.Is(err, ErrInvalidStatusTransition)
		},
		genRequirementStatus(),
	))

	properties.TestingRun(t)
}

// **Feature: project-lifecycle, Property 3: Project status never stays in place**
// For any project status, moving to the same status is rejected while every
// listed successor is accepted.
func TestPropertyProjectStatusTransitions(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("self moves fail, listed moves succeed", prop.ForAll(
		func(from, to ProjectStatus) bool {
			got, err := from.ChangeStatus(to)
			if from == to {
				return errors.Is(err, ErrInvalidStatusTransition)
			}
			if from.CanTransitionTo(to) {
				return err == nil && got == to
			}
			return errors.Is(err, ErrInvalidStatusTransition)
		},
		genProjectStatus(),
		genProjectStatus(),
	))

	properties.TestingRun(t)
}

func TestParseStatusRejectsUnknownValues(t *testing.T) {
	if _, err := ParseRequirementStatus("blocked"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("ParseRequirementStatus(blocked) error = %v, want ErrInvalidStatus", err)
	}
	if _, err := ParseProjectStatus("deleted"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("ParseProjectStatus(deleted) error = %v, want ErrInvalidStatus", err)
	}
	if !IsValidation(ErrInvalidStatus) {
		t.Error("ErrInvalidStatus should be a validation error")
	}
}
