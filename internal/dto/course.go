package dto

// ScheduleSlotInput is one weekly window of a course.
type ScheduleSlotInput struct {
	Weekday     int `json:"weekday" validate:"min=0,max=6"`
	StartMinute int `json:"start_minute" validate:"min=0,max=1440"`
	EndMinute   int `json:"end_minute" validate:"min=0,max=1440"`
}

// CreateCourseRequest describes a new course. The name comes from the path.
type CreateCourseRequest struct {
	Description string              `json:"description" validate:"required,max=2000"`
	Schedule    []ScheduleSlotInput `json:"schedule" validate:"required,min=1,max=7,dive"`
}

// CourseDecisionRequest approves or rejects a pending course.
type CourseDecisionRequest struct {
	IsApproved *bool  `json:"is_approved" validate:"required"`
	Email      string `json:"email" validate:"omitempty,email"`
	FirstName  string `json:"first_name"`
}

// AddLiveClassRequest schedules a live session. Date uses YYYY-MM-DD.
type AddLiveClassRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Date        string `json:"date" validate:"required"`
	StartMinute *int   `json:"start_minute" validate:"required,min=0,max=1439"`
	Link        string `json:"link" validate:"required,url"`
}

// UpdateLiveClassStatusRequest closes a live class.
type UpdateLiveClassStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=done cancelled"`
}
