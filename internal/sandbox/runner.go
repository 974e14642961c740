package sandbox

import (
	"bytes"
	"context"
)

// Invocation is a single compile or run step.
type Invocation struct {
	// Dir is the scratch directory. Paths in Args are relative to it.
	Dir   string
	Image string
	Tools []string
	Args  []string
}

// Outcome is what a Runner observed. At most one of Missing, Interrupted and
// Err is set; otherwise ExitCode is the program's exit status.
type Outcome struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Truncated bool

	// Missing names the tool or image that could not be located.
	Missing string
	// Interrupted is set when the invocation was killed because ctx ended.
	Interrupted bool
	// Err is a launcher failure unrelated to the program itself.
	Err error
}

// Runner launches one invocation and blocks until it exits or ctx ends. When
// ctx ends the runner must kill the program before returning.
type Runner interface {
	Run(ctx context.Context, inv Invocation) Outcome
}

// cappedBuffer keeps the first max bytes written to it and silently drops the
// rest so a chatty program cannot exhaust memory.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if c.max <= 0 {
		return c.buf.Write(p)
	}
	remain := c.max - c.buf.Len()
	if remain <= 0 {
		if len(p) > 0 {
			c.truncated = true
		}
		return len(p), nil
	}
	if len(p) > remain {
		c.buf.Write(p[:remain])
		c.truncated = true
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *cappedBuffer) String() string {
	return c.buf.String()
}
