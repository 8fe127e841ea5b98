package detector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchIDCard(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"身份证号 110101199003071234 请核对", true},
		{"no.11010119900307123X", true},
		{"id: 11010119900307123x end", true},
		{"11010119900307123X", true},
		{"110101209912311234", true},
		{"010101199003071234", false},
		{"110101199013071234", false},
		{"110101199003321234", false},
		{"1101011990030712345", false},
		{"", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, MatchIDCard(tc.text), tc.text)
	}
}

func TestMatchPhone(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"手机 13812345678", true},
		{"+86 13812345678", true},
		{"0871-65031234", true},
		{"tel 65031234", true},
		{"1234567", true},
		{"123456", false},
		{"no digits here", false},
		{"", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, MatchPhone(tc.text), tc.text)
	}
}
