package models

// Course is the read model the engine needs from the catalogue. Courses are
// owned elsewhere; only publication state and lesson count matter here.
type Course struct {
	ID           int64  `db:"id" json:"id"`
	InstructorID int64  `db:"instructor_id" json:"instructor_id"`
	Title        string `db:"title" json:"title"`
	Published    bool   `db:"published" json:"published"`
	TotalLessons int    `db:"total_lessons" json:"total_lessons"`
}

// IsOwnedBy checks the course instructor.
func (c *Course) IsOwnedBy(instructorID int64) bool {
	return c.InstructorID == instructorID
}
