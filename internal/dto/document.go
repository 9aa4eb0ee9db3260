package dto

// SubmitDocumentsRequest holds the scalar fields of a verification
// submission. Files travel alongside as multipart parts named after the
// document kinds.
type SubmitDocumentsRequest struct {
	Phone            string   `form:"phone" validate:"required,indian_mobile"`
	Address          string   `form:"address" validate:"required,max=500"`
	HighestEducation string   `form:"highest_education" validate:"required"`
	SecondarySchool  string   `form:"secondary_school" validate:"required"`
	HigherSchool     string   `form:"higher_school" validate:"required"`
	SecondaryMarks   *float64 `form:"secondary_marks" validate:"required,percentage"`
	HigherMarks      *float64 `form:"higher_marks" validate:"required,percentage"`
	UGCollege        string   `form:"ug_college"`
	PGCollege        string   `form:"pg_college"`
	UGMarks          *float64 `form:"ug_marks" validate:"omitempty,percentage"`
	PGMarks          *float64 `form:"pg_marks" validate:"omitempty,percentage"`
	ExperienceYears  *int     `form:"experience_years" validate:"omitempty,min=0,max=60"`
}

// TeacherFields lists the extra fields teachers must provide.
type TeacherFields struct {
	UGCollege string   `form:"ug_college" validate:"required"`
	PGCollege string   `form:"pg_college" validate:"required"`
	UGMarks   *float64 `form:"ug_marks" validate:"required,percentage"`
	PGMarks   *float64 `form:"pg_marks" validate:"required,percentage"`
}
