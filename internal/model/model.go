package model

import "time"

// ClassGroup is a teacher-managed class. Names are free text and are not
// guaranteed unique once cleaned for share links.
type ClassGroup struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Student belongs to at most one class. SequenceNo is assigned per class,
// unique within it, and only exists once the student has been saved into a
// class.
type Student struct {
	ID           string
	ClassID      *string
	Name         string
	SequenceNo   *int64
	ReadingScore float64
	WritingScore float64
	MathScore    float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is a single class meeting, optionally with an attached media URL
// and a generated summary of it.
type Session struct {
	ID        string
	ClassID   string
	Title     string
	MediaURL  *string
	Summary   *string
	HeldAt    time.Time
	CreatedAt time.Time
}
