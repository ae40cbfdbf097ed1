package main

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"chat-relay/internal/config"
	"chat-relay/internal/services"
)

func TestWriteTimeout(t *testing.T) {
	g := services.GuardSettings{Timeout: 30 * time.Second, MaxRetries: 2, Backoff: 500 * time.Millisecond}

	// 3 attempts, 0.5s + 1s backoff, 10s margin
	assert.Equal(t, 90*time.Second+1500*time.Millisecond+10*time.Second, writeTimeout(g))

	g.MaxRetries = 0
	assert.Equal(t, 40*time.Second, writeTimeout(g))
}

func TestNewLogger_Level(t *testing.T) {
	logger := newLogger(&config.Config{LogLevel: "warn"})
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	logger = newLogger(&config.Config{LogLevel: "verbose"})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

type recordingCloser struct {
	name   string
	closed *[]string
	err    error
}

func (c recordingCloser) Close() error {
	*c.closed = append(*c.closed, c.name)
	return c.err
}

func TestClosers_CloseAllInReverse(t *testing.T) {
	var closed []string
	failure := errors.New("transport already closed")
	c := closers{
		recordingCloser{name: "huggingface", closed: &closed},
		recordingCloser{name: "gemini", closed: &closed, err: failure},
		recordingCloser{name: "gateway", closed: &closed},
	}

	err := c.Close()

	assert.Equal(t, []string{"gateway", "gemini", "huggingface"}, closed)
	assert.ErrorIs(t, err, failure)
}

func TestClosers_Empty(t *testing.T) {
	var c closers
	assert.NoError(t, c.Close())
}
