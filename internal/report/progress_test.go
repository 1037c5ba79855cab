package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/portsweep/internal/config"
	"github.com/shinji-kodama/portsweep/internal/model"
)

// TestDotsSink writes exactly one mark per probe and a trailing newline.
func TestDotsSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewDotsSink(&buf)

	for i := 0; i < 1000; i++ {
		s.Observe(model.ProbeOutcome{Port: model.Port(i)})
	}
	assert.Equal(t, 3*dotsFlushEvery, buf.Len(), "marks are flushed in batches")

	s.Finish()
	assert.Equal(t, strings.Repeat(".", 1000)+"\n", buf.String())
}

func TestDotsSink_NoProbes(t *testing.T) {
	var buf bytes.Buffer
	s := NewDotsSink(&buf)
	s.Finish()
	assert.Equal(t, "\n", buf.String())
}

func TestNewSink(t *testing.T) {
	var buf bytes.Buffer

	s, err := NewSink(config.ProgressDots, &buf, "127.0.0.1", 10)
	require.NoError(t, err)
	assert.IsType(t, &DotsSink{}, s)

	s, err = NewSink(config.ProgressNone, &buf, "127.0.0.1", 10)
	require.NoError(t, err)
	s.Observe(model.ProbeOutcome{})
	s.Finish()
	assert.Zero(t, buf.Len())

	_, err = NewSink("spinner", &buf, "127.0.0.1", 10)
	assert.Error(t, err)
}

// TestBarSink drives a bar through a full run without blocking.
func TestBarSink(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewSink(config.ProgressBar, &buf, "127.0.0.1", 300)
	require.NoError(t, err)

	bar, ok := s.(*BarSink)
	require.True(t, ok)
	for i := 0; i < 300; i++ {
		bar.Observe(model.ProbeOutcome{Port: model.Port(i)})
	}
	bar.Finish()
	assert.Equal(t, 300, bar.bar.Current)
}
