package notify

import "context"

// RecordStore persists one notification record per recipient, with one
// translation per locale.
type RecordStore interface {
	Save(ctx context.Context, recipients []Recipient, request *NotificationRequest) error
}

// JobQueue hands dispatch jobs to asynchronous workers. Delivery is
// at-least-once with no ordering between jobs.
type JobQueue interface {
	Enqueue(ctx context.Context, job *Job) error
}
