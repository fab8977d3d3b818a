package domain

import "time"

// Task is a personal to-do item owned by a single user.
type Task struct {
	ID          int64
	Title       string
	Description string
	Completed   bool
	OwnerID     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskUpdate carries a partial update; nil fields are left untouched.
type TaskUpdate struct {
	Title       *string
	Description *string
	Completed   *bool
}

// Apply copies the non-nil fields of u onto t.
func (u TaskUpdate) Apply(t *Task) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Completed != nil {
		t.Completed = *u.Completed
	}
}
