package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// waitDelay bounds how long Speak waits for output pipes after a cancel.
const waitDelay = 200 * time.Millisecond

// Argument placeholders substituted by CommandSynthesizer.
const (
	ArgText     = "{text}"
	ArgLanguage = "{lang}"
)

// CommandSynthesizer speaks through a local TTS program such as espeak-ng or say.
// The process runs to completion; cancelling ctx kills it and its children.
type CommandSynthesizer struct {
	command string
	args    []string
}

// NewCommandSynthesizer creates a synthesizer running command with args.
// When no argument contains {text}, the text is appended as the last argument.
func NewCommandSynthesizer(command string, args []string) *CommandSynthesizer {
	if command == "" {
		command = "espeak-ng"
	}
	return &CommandSynthesizer{command: command, args: args}
}

// Speak implements Synthesizer.
func (s *CommandSynthesizer) Speak(ctx context.Context, text, language string) error {
	cmd := exec.CommandContext(ctx, s.command, s.buildArgs(text, language)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// Wrappers such as shell scripts spawn the player as a child; kill the
	// whole group so playback stops with the prompt.
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("synthesis command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (s *CommandSynthesizer) buildArgs(text, language string) []string {
	args := make([]string, 0, len(s.args)+1)
	hasText := false
	for _, arg := range s.args {
		if strings.Contains(arg, ArgText) {
			hasText = true
		}
		arg = strings.ReplaceAll(arg, ArgLanguage, language)
		arg = strings.ReplaceAll(arg, ArgText, text)
		args = append(args, arg)
	}
	if !hasText {
		args = append(args, text)
	}
	return args
}
