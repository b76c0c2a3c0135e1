package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"fullName" validate:"required,min=2"`
	Phone string `json:"phoneNumber" validate:"required,mzphone"`
	OAM   string `json:"oamNumber" validate:"omitempty,oam"`
	Stars int    `json:"stars" validate:"gte=1,lte=5"`
}

func TestValidate_LaravelShape(t *testing.T) {
	errs, err := Validate(sample{Name: "A", Phone: "12345", OAM: "X-1", Stars: 9})
	require.NoError(t, err)
	require.NotNil(t, errs)

	assert.Equal(t, []string{"Must be at least 2 characters"}, errs["fullName"])
	assert.Equal(t, []string{"Invalid Mozambican phone number"}, errs["phoneNumber"])
	assert.Contains(t, errs["oamNumber"][0], "OAM")
	assert.Equal(t, []string{"Must be less than or equal to 5"}, errs["stars"])
}

func TestValidate_OK(t *testing.T) {
	errs, err := Validate(sample{Name: "Ana", Phone: "+258 84 123 4567", OAM: "oam-12345", Stars: 5})
	require.NoError(t, err)
	assert.Nil(t, errs)
}

func TestIsMZPhone(t *testing.T) {
	for _, ok := range []string{"841234567", "258851234567", "+258 87 123 4567", "82-123-4567"} {
		assert.True(t, IsMZPhone(ok), ok)
	}
	for _, bad := range []string{"", "25884123", "911234567", "+351 912 345 678"} {
		assert.False(t, IsMZPhone(bad), bad)
	}
}
