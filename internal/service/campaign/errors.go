package campaign

import "errors"

// Sentinel errors for the campaign service layer. Launch failures leave no
// jobs behind and do not change the campaign's status.
var (
	ErrNotFound             = errors.New("campaign not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrNoSteps              = errors.New("campaign has no steps")
	ErrInvalidStepDelay     = errors.New("follow-up steps need a positive delay")
	ErrNoEligibleRecipients = errors.New("campaign has no eligible recipients")
	ErrAccountUnusable      = errors.New("sending account unusable")
)
