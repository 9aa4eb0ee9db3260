package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Phone string  `json:"phone" validate:"required,indian_mobile"`
	Marks float64 `form:"marks" validate:"percentage"`
}

func TestIndianMobile(t *testing.T) {
	v := New()
	assert.NoError(t, v.Struct(sample{Phone: "9876543210", Marks: 50}))
	for _, phone := range []string{"5876543210", "987654321", "98765432101", "98765x3210"} {
		assert.Error(t, v.Struct(sample{Phone: phone}), phone)
	}
}

func TestPercentage(t *testing.T) {
	v := New()
	assert.NoError(t, v.Struct(sample{Phone: "9876543210", Marks: 100}))
	assert.NoError(t, v.Struct(sample{Phone: "9876543210", Marks: 0}))
	assert.Error(t, v.Struct(sample{Phone: "9876543210", Marks: 100.5}))
	assert.Error(t, v.Struct(sample{Phone: "9876543210", Marks: -1}))
}

func TestDescribeUsesWireNames(t *testing.T) {
	err := New().Struct(sample{Phone: "123", Marks: 140})
	require.Error(t, err)
	msg := Describe(err)
	assert.Contains(t, msg, "phone must be a 10 digit mobile number")
	assert.Contains(t, msg, "marks must be between 0 and 100")
	assert.Equal(t, "plain", Describe(errors.New("plain")))
}
