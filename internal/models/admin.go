package models

// AuthorizedAdmin is produced only after the caller's token, the path admin id
// and the stored admin record all agree. Admin operations require it.
type AuthorizedAdmin struct {
	ID       string
	Email    string
	FullName string
}
