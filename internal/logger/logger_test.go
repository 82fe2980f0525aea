package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewDefaults(t *testing.T) {
	log := New(Config{})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)
}

func TestNewTextDebug(t *testing.T) {
	log := New(Config{Level: "debug", Format: "TEXT"})
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)
}

func TestNewUnknownLevel(t *testing.T) {
	log := New(Config{Level: "loud"})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}
