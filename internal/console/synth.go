package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/droidcore/mission/internal/voice"
	"github.com/droidcore/mission/pkg/logger"
)

// PrintSynthesizer "speaks" by writing the utterance to w.
type PrintSynthesizer struct {
	mu sync.Mutex
	w  io.Writer
}

var _ voice.Synthesizer = (*PrintSynthesizer)(nil)

// NewPrintSynthesizer returns a synthesizer writing to w.
func NewPrintSynthesizer(w io.Writer) *PrintSynthesizer {
	return &PrintSynthesizer{w: w}
}

// Speak implements voice.Synthesizer.
func (s *PrintSynthesizer) Speak(text string, done func()) error {
	s.mu.Lock()
	_, err := fmt.Fprintf(s.w, "(speaking) %s\n", text)
	s.mu.Unlock()
	if done != nil {
		done()
	}
	return err
}

// Cancel implements voice.Synthesizer.
func (s *PrintSynthesizer) Cancel() {}

// CommandSynthesizer speaks through an external text-to-speech program such
// as espeak or say, passing the utterance as the last argument.
type CommandSynthesizer struct {
	name string
	args []string

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ voice.Synthesizer = (*CommandSynthesizer)(nil)

// NewCommandSynthesizer parses a command line such as "espeak -s 160".
func NewCommandSynthesizer(command string) (*CommandSynthesizer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("console: empty speech command")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, fmt.Errorf("console: speech command: %w", err)
	}
	return &CommandSynthesizer{name: fields[0], args: fields[1:]}, nil
}

// Speak implements voice.Synthesizer. It interrupts any utterance still
// playing.
func (s *CommandSynthesizer) Speak(text string, done func()) error {
	s.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	args := append(append([]string(nil), s.args...), text)
	cmd := exec.CommandContext(ctx, s.name, args...)
	if err := cmd.Start(); err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			logger.Debugf("console: speech command: %v", err)
		}
		if done != nil {
			done()
		}
	}()
	return nil
}

// Cancel implements voice.Synthesizer.
func (s *CommandSynthesizer) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until every started utterance has finished.
func (s *CommandSynthesizer) Wait() { s.wg.Wait() }
