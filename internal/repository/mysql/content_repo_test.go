package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeLike(t *testing.T) {
	cases := map[string]string{
		"bridge":    "bridge",
		"100%":      `100\%`,
		"old_town":  `old\_town`,
		`c:\photos`: `c:\\photos`,
		`%_\`:       `\%\_\\`,
	}
	for in, want := range cases {
		assert.Equal(t, want, escapeLike(in), "input %q", in)
	}
}
