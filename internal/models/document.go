package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Document names accepted in a verification bundle.
const (
	DocIdentityProof      = "identity_proof"
	DocSecondaryMarksheet = "secondary_marksheet"
	DocHigherMarksheet    = "higher_marksheet"
	DocUGCertificate      = "ug_certificate"
	DocPGCertificate      = "pg_certificate"
)

// RequiredDocuments lists the files a role must upload.
func RequiredDocuments(role Role) []string {
	docs := []string{DocIdentityProof, DocSecondaryMarksheet, DocHigherMarksheet}
	if role == RoleTeacher {
		docs = append(docs, DocUGCertificate, DocPGCertificate)
	}
	return docs
}

// DocumentProfile holds the education details submitted with documents.
type DocumentProfile struct {
	HighestEducation string   `json:"highest_education"`
	SecondarySchool  string   `json:"secondary_school"`
	HigherSchool     string   `json:"higher_school"`
	SecondaryMarks   float64  `json:"secondary_marks"`
	HigherMarks      float64  `json:"higher_marks"`
	UGCollege        string   `json:"ug_college,omitempty"`
	PGCollege        string   `json:"pg_college,omitempty"`
	UGMarks          *float64 `json:"ug_marks,omitempty"`
	PGMarks          *float64 `json:"pg_marks,omitempty"`
	ExperienceYears  *int     `json:"experience_years,omitempty"`
}

// Value marshals the profile for the JSONB column.
func (p DocumentProfile) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal document profile: %w", err)
	}
	return data, nil
}

// Scan unmarshals the JSONB column.
func (p *DocumentProfile) Scan(value interface{}) error {
	data, err := jsonBytes(value, "DocumentProfile")
	if err != nil || len(data) == 0 {
		*p = DocumentProfile{}
		return err
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal document profile: %w", err)
	}
	return nil
}

// DocumentSet maps a document name to its stored URL.
type DocumentSet map[string]string

// Value marshals the set for the JSONB column.
func (d DocumentSet) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(map[string]string(d))
	if err != nil {
		return nil, fmt.Errorf("marshal document set: %w", err)
	}
	return data, nil
}

// Scan unmarshals the JSONB column.
func (d *DocumentSet) Scan(value interface{}) error {
	data, err := jsonBytes(value, "DocumentSet")
	if err != nil {
		return err
	}
	out := DocumentSet{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("unmarshal document set: %w", err)
		}
	}
	*d = out
	return nil
}

// DocumentBundle is the verification submission of one identity.
type DocumentBundle struct {
	ID        string          `db:"id" json:"id"`
	OwnerID   string          `db:"owner_id" json:"owner_id"`
	OwnerRole Role            `db:"owner_role" json:"owner_role"`
	Phone     string          `db:"phone" json:"phone"`
	Address   string          `db:"address" json:"address"`
	Profile   DocumentProfile `db:"profile" json:"profile"`
	Documents DocumentSet     `db:"documents" json:"documents"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

func jsonBytes(value interface{}, target string) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T for %s", value, target)
	}
}
