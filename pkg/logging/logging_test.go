package logging

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestNew_Levels(t *testing.T) {
	var buf bytes.Buffer

	quiet := New(&buf, false)
	assert.Equal(t, log.InfoLevel, quiet.GetLevel())
	quiet.Debug("hidden")
	assert.Empty(t, buf.String())

	verbose := New(&buf, true)
	assert.Equal(t, log.DebugLevel, verbose.GetLevel())
	verbose.Debug("exec", "cmd", "qm template 9000")
	assert.Contains(t, buf.String(), "pvetmpl")
	assert.Contains(t, buf.String(), "qm template 9000")
}
