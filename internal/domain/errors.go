package domain

import "fmt"

// TimerNotFoundError is returned when a timer ID does not exist.
type TimerNotFoundError struct {
	TimerID string
}

func (e *TimerNotFoundError) Error() string {
	return fmt.Sprintf("timer not found: %s", e.TimerID)
}

// DuplicateTimerError is returned when creating a timer whose ID is already taken.
type DuplicateTimerError struct {
	TimerID string
}

func (e *DuplicateTimerError) Error() string {
	return fmt.Sprintf("timer with id %q already exists", e.TimerID)
}

// TimerLimitError is returned when the registry already holds the configured
// maximum number of timers.
type TimerLimitError struct {
	Limit int
}

func (e *TimerLimitError) Error() string {
	return fmt.Sprintf("timer limit reached: at most %d timers allowed", e.Limit)
}
