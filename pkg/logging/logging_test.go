package logging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	old := Logf
	defer func() { Logf = old; SetVerbose(false) }()

	var lines []string
	SetLogger(func(format string, v ...any) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	Logf("a %d", 1)
	Debugf("hidden")
	SetVerbose(true)
	Debugf("b %s", "x")
	assert.Equal(t, []string{"a 1", "b x"}, lines)

	SetLogger(nil)
	Logf("muted")
	assert.Len(t, lines, 2)
}
