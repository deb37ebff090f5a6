package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Jane.Doe@Example.com", "jane.doe@example.com", true},
		{"my email is jane dot doe at gmail dot com", "jane.doe@gmail.com", true},
		{"it's user underscore name at gmail dot com.", "user_name@gmail.com", true},
		{"sam hyphen lee at the rate outlook dot com", "sam-lee@outlook.com", true},
		{"sure, reach me at bob@corp.io please", "bob@corp.io", true},
		{"email alex 42 at yahoo dot in", "alex42@yahoo.in", true},
		{"hello there", "", false},
		{"at dot", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ExtractEmail(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractPassword(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"my password is Hunter2!", "Hunter2", true},
		{"Password is the S3cret", "S3cret", true},
		{"Tr0ub4dor", "Tr0ub4dor", true},
		{"abc", "", false},
		{"please wait", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ExtractPassword(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "j***@gmail.com", MaskEmail("jane@gmail.com"))
	assert.Equal(t, "***", MaskEmail("nobody"))
	assert.Equal(t, "", MaskEmail(""))

	s := Credentials{Email: "jane@gmail.com", Password: "hunter2"}.String()
	assert.NotContains(t, s, "hunter2")
	assert.NotContains(t, s, "jane@")
}
