package progression

import "errors"

// Sentinel errors for the progression service layer.
var (
	ErrNotFound               = errors.New("contact journey not found")
	ErrJourneyNotFound        = errors.New("journey not found")
	ErrStageNotFound          = errors.New("stage not found")
	ErrJourneyInactive        = errors.New("journey is not accepting enrollments")
	ErrNoEntryPoint           = errors.New("journey has no entry-point stage")
	ErrJourneyNotActive       = errors.New("contact journey is not active")
	ErrNotPaused              = errors.New("contact journey is not paused")
	ErrTerminal               = errors.New("contact journey is completed or dropped")
	ErrInvalidTransition      = errors.New("no transition defined between stages")
	ErrNoOpenVisit            = errors.New("contact journey has no open stage visit")
	ErrConcurrentModification = errors.New("contact journey was modified concurrently")
)
