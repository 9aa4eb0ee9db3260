package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CourseStatus is the approval state of a course. Rejected courses are deleted.
type CourseStatus string

const (
	CourseStatusPending  CourseStatus = "pending"
	CourseStatusApproved CourseStatus = "approved"
)

// ScheduleSlot is a weekly teaching window in minutes since midnight.
type ScheduleSlot struct {
	Weekday     int `json:"weekday"`
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// Schedule is the weekly timetable of a course.
type Schedule []ScheduleSlot

// HasWeekday reports whether the schedule teaches on day (0 = Sunday).
func (s Schedule) HasWeekday(day time.Weekday) bool {
	for _, slot := range s {
		if slot.Weekday == int(day) {
			return true
		}
	}
	return false
}

// Value marshals the schedule for the JSONB column.
func (s Schedule) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	data, err := json.Marshal([]ScheduleSlot(s))
	if err != nil {
		return nil, fmt.Errorf("marshal schedule: %w", err)
	}
	return data, nil
}

// Scan unmarshals the JSONB column.
func (s *Schedule) Scan(value interface{}) error {
	data, err := jsonBytes(value, "Schedule")
	if err != nil {
		return err
	}
	out := Schedule{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("unmarshal schedule: %w", err)
		}
	}
	*s = out
	return nil
}

// Course is a teacher-owned offering that must be approved before use.
type Course struct {
	ID             string       `db:"id" json:"id"`
	Name           string       `db:"name" json:"name"`
	Description    string       `db:"description" json:"description"`
	TeacherID      string       `db:"teacher_id" json:"teacher_id"`
	ApprovalStatus CourseStatus `db:"approval_status" json:"approval_status"`
	Schedule       Schedule     `db:"schedule" json:"schedule"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// CourseWithTeacher joins the owning teacher for admin and catalogue views.
type CourseWithTeacher struct {
	Course
	TeacherFirstName string `db:"teacher_first_name" json:"teacher_first_name"`
	TeacherLastName  string `db:"teacher_last_name" json:"teacher_last_name"`
	TeacherEmail     string `db:"teacher_email" json:"teacher_email"`
	EnrolledCount    int    `db:"enrolled_count" json:"enrolled_count"`
}

// CourseEnrollment links a student to an approved course.
type CourseEnrollment struct {
	CourseID   string    `db:"course_id" json:"course_id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// LiveClassStatus tracks a scheduled session.
type LiveClassStatus string

const (
	LiveClassUpcoming  LiveClassStatus = "upcoming"
	LiveClassDone      LiveClassStatus = "done"
	LiveClassCancelled LiveClassStatus = "cancelled"
)

// LiveClass is a dated session of an approved course.
type LiveClass struct {
	ID            string          `db:"id" json:"id"`
	CourseID      string          `db:"course_id" json:"course_id"`
	TeacherID     string          `db:"teacher_id" json:"teacher_id"`
	Title         string          `db:"title" json:"title"`
	ScheduledDate time.Time       `db:"scheduled_date" json:"scheduled_date"`
	StartMinute   int             `db:"start_minute" json:"start_minute"`
	Link          string          `db:"link" json:"link"`
	Status        LiveClassStatus `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// LiveClassView adds the course name for class listings.
type LiveClassView struct {
	LiveClass
	CourseName string `db:"course_name" json:"course_name"`
}
