package cdi

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/coreloop/pkg/protocol"
)

// Step is one scripted command issued Delay after the previous step.
type Step struct {
	Delay   time.Duration
	Command protocol.Command
	Wait    bool // delay only, no command
}

// Script is a timed list of commands.
//
// Each line is one of:
//
//	CMD <seconds> <opcode hex> <arg hex>
//	WAIT <seconds>
//
// Blank lines and lines starting with '#' are ignored.
type Script []Step

// LoadScript reads a script file.
func LoadScript(filename string) (Script, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()
	return ParseScript(f)
}

// ParseScript parses script text.
func ParseScript(r io.Reader) (Script, error) {
	var s Script
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		step, err := parseStep(strings.Fields(line))
		if err != nil {
			return nil, fmt.Errorf("script line %d: %w", n, err)
		}
		s = append(s, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return s, nil
}

func parseStep(f []string) (Step, error) {
	switch strings.ToUpper(f[0]) {
	case "WAIT":
		if len(f) != 2 {
			return Step{}, fmt.Errorf("expected WAIT <seconds>")
		}
		d, err := parseSeconds(f[1])
		return Step{Delay: d, Wait: true}, err
	case "CMD":
		if len(f) != 4 {
			return Step{}, fmt.Errorf("expected CMD <seconds> <opcode> <arg>")
		}
		d, err := parseSeconds(f[1])
		if err != nil {
			return Step{}, err
		}
		op, err := strconv.ParseUint(f[2], 16, 8)
		if err != nil {
			return Step{}, fmt.Errorf("invalid opcode: %w", err)
		}
		arg, err := strconv.ParseUint(f[3], 16, 16)
		if err != nil {
			return Step{}, fmt.Errorf("invalid argument: %w", err)
		}
		return Step{Delay: d, Command: protocol.Command{
			Opcode: protocol.Opcode(op),
			ArgHi:  uint8(arg >> 8),
			ArgLo:  uint8(arg),
		}}, nil
	}
	return Step{}, fmt.Errorf("unknown directive %q", f[0])
}

func parseSeconds(s string) (time.Duration, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid delay %q", s)
	}
	return time.Duration(v * float64(time.Second)), nil
}

// Run issues the steps in order, sleeping before each one.
func (s Script) Run(ctx context.Context, push func(protocol.Command) bool) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for _, step := range s {
		timer.Reset(step.Delay)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		if !step.Wait {
			push(step.Command)
		}
	}
	return nil
}
