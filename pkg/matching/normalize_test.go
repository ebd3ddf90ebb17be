package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase", "ab123456", "AB123456"},
		{"whitespace stripped", "AB 123 456", "AB123456"},
		{"punctuation stripped", "AB-123/456.7", "AB1234567"},
		{"mixed", " p-123 456 ", "P123456"},
		{"empty", "", ""},
		{"only punctuation", "--//--", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeIdentifier(tt.input))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Ivan PETROV", "ivan petrov"},
		{"collapses whitespace", "  Ivan   Petrov ", "ivan petrov"},
		{"drops punctuation", "O'Brien, John-Paul", "obrien johnpaul"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}
