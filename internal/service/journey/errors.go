package journey

import (
	"errors"
	"fmt"
)

// Sentinel errors for the journey graph service layer.
var (
	ErrNotFound               = errors.New("journey not found")
	ErrStageNotFound          = errors.New("stage not found")
	ErrTransitionNotFound     = errors.New("transition not found")
	ErrCrossJourneyTransition = errors.New("transition endpoints belong to different journeys")
	ErrStageInUse             = errors.New("stage has open visits")
)

// StageInUseError reports how many contacts currently occupy a stage that a
// caller tried to delete. Matches ErrStageInUse under errors.Is.
type StageInUseError struct {
	StageID    string
	OpenVisits int
}

func (e *StageInUseError) Error() string {
	return fmt.Sprintf("stage %s has %d open visits", e.StageID, e.OpenVisits)
}

func (e *StageInUseError) Is(target error) bool { return target == ErrStageInUse }
