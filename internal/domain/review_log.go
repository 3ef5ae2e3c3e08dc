package domain

// ReviewKind classifies a review log row.
type ReviewKind int

const (
	ReviewLearn ReviewKind = iota
	ReviewReview
	ReviewRelearn
	ReviewCram
)

// ReviewLog records a single answer. Positive intervals are days, negative
// intervals are seconds.
type ReviewLog struct {
	// ID is the answer time in milliseconds; together with CardID it is the key.
	ID           int64
	CardID       int64
	USN          int
	Grade        Grade
	Interval     int
	LastInterval int
	Factor       int
	// TimeTaken is in milliseconds.
	TimeTaken int
	Kind      ReviewKind
}
