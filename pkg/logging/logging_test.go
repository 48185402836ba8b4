package logging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type capture struct {
	lines []string
}

func (c *capture) logf(format string, args ...interface{}) {
	c.lines = append(c.lines, fmt.Sprintf(format, args...))
}

func TestLoggerPrefix(t *testing.T) {
	c := &capture{}
	logger := NewLogger("module: test , ", LogFuncs{Infof: c.logf})

	logger.Infof("hello %s", "world")

	assert.Equal(t, []string{"module: test , hello world"}, c.lines)
}

func TestLoggerNilFuncsAreNoOps(t *testing.T) {
	logger := NewLogger("p", LogFuncs{})

	assert.NotPanics(t, func() {
		logger.Debugf("a")
		logger.Infof("b")
		logger.Warnf("c")
		logger.Errorf("d")
	})
}

func TestLogLevelfDispatch(t *testing.T) {
	debug := &capture{}
	info := &capture{}
	warn := &capture{}
	errs := &capture{}
	logger := NewLogger("", LogFuncs{
		Debugf: debug.logf,
		Infof:  info.logf,
		Warnf:  warn.logf,
		Errorf: errs.logf,
	})

	logger.LogLevelf(LevelDebug, "d")
	logger.LogLevelf(LevelInfo, "i")
	logger.LogLevelf(LevelWarn, "w")
	logger.LogLevelf(LevelError, "e")

	assert.Equal(t, []string{"d"}, debug.lines)
	assert.Equal(t, []string{"i"}, info.lines)
	assert.Equal(t, []string{"w"}, warn.lines)
	assert.Equal(t, []string{"e"}, errs.lines)
}
