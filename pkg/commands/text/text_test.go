package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLongDesc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "leading and trailing whitespace",
			input:    "   Both ends.   ",
			expected: "Both ends.",
		},
		{
			name: "indented raw string",
			input: `
				Connects a wallet app.

				The session is stored locally.
			`,
			expected: "Connects a wallet app.\n\nThe session is stored locally.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, LongDesc(tc.input))
		})
	}
}

func TestExamples(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "   ",
			expected: "",
		},
		{
			name: "commented examples",
			input: `
				# Pay 1.5 TON
				tonpay pay --amount 1.5

				# Pay 10 USDT
				tonpay pay --amount 10 --asset USDT
			`,
			expected: "  # Pay 1.5 TON\n  tonpay pay --amount 1.5\n\n  # Pay 10 USDT\n  tonpay pay --amount 10 --asset USDT",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, Examples(tc.input))
		})
	}
}
