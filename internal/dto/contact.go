package dto

// ContactRequest is a public contact form submission.
type ContactRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Message string `json:"message" validate:"required,max=5000"`
}

// MarkReadRequest flags an inbox message read.
type MarkReadRequest struct {
	MessageID string `json:"message_id" validate:"required"`
}
