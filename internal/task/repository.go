package task

import "context"

// Repository is the read side of the external task store.
//
// The core owns all recurrence/eligibility filtering client-side; Tasks
// returns every record for the user and callers filter.
type Repository interface {
	// Tasks returns all task records owned by userID.
	Tasks(ctx context.Context, userID string) ([]Task, error)

	// Task returns one record by id. ok is false when the record no longer
	// exists (deleted tasks are a normal case, not an error).
	Task(ctx context.Context, id string) (t Task, ok bool, err error)
}
