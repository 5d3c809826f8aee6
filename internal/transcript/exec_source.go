package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/savilabs/savi-core/internal/config"
	"github.com/shopspring/decimal"
)

// execSource runs a long-lived transcriber command (whisper-style) and
// reads one JSON object per line from its stdout. Offsets are seconds
// from stream start; the source anchors them to the process spawn time.
type execSource struct {
	cmd    []string
	cfg    config.TranscriptConfig
	logger *slog.Logger
}

type execLine struct {
	Text       string          `json:"text"`
	Start      decimal.Decimal `json:"start"`
	End        decimal.Decimal `json:"end"`
	Confidence float64         `json:"confidence"`
}

func NewExecSource(cfg config.TranscriptConfig, logger *slog.Logger) (Source, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse transcript command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("transcript command is empty")
	}
	return &execSource{cmd: args, cfg: cfg, logger: logger.With(slog.String("component", "transcript-exec"))}, nil
}

func (s *execSource) Stream(ctx context.Context) (<-chan Segment, error) {
	out := make(chan Segment)
	go func() {
		defer close(out)
		backoff := time.Duration(s.cfg.RespawnBackoffMS) * time.Millisecond
		maxBackoff := time.Duration(s.cfg.RespawnMaxMS) * time.Millisecond
		if backoff <= 0 {
			backoff = 500 * time.Millisecond
		}
		if maxBackoff < backoff {
			maxBackoff = backoff
		}
		wait := backoff
		for {
			if ctx.Err() != nil {
				return
			}
			err := s.runOnce(ctx, out)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				s.logger.Warn("transcriber exited, respawning",
					slog.String("error", err.Error()),
					slog.Duration("backoff", wait))
			} else {
				wait = backoff
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			wait *= 2
			if wait > maxBackoff {
				wait = maxBackoff
			}
		}
	}()
	return out, nil
}

func (s *execSource) runOnce(ctx context.Context, out chan<- Segment) error {
	args := append([]string{}, s.cmd...)
	if s.cfg.Language != "" {
		args = append(args, "--language", s.cfg.Language)
	}
	command := exec.CommandContext(ctx, args[0], args[1:]...)
	stdout, err := command.StdoutPipe()
	if err != nil {
		return fmt.Errorf("transcriber stdout: %w", err)
	}
	if err := command.Start(); err != nil {
		return fmt.Errorf("start transcriber: %w", err)
	}
	anchor := time.Now()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var parsed execLine
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			s.logger.Warn("skipping malformed transcriber line", slog.String("error", err.Error()))
			continue
		}
		seg := Segment{
			Text:       strings.TrimSpace(parsed.Text),
			Start:      anchor.Add(msOffset(parsed.Start)),
			End:        anchor.Add(msOffset(parsed.End)),
			Confidence: parsed.Confidence,
		}
		select {
		case out <- seg:
		case <-ctx.Done():
			_ = command.Process.Kill()
			_ = command.Wait()
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		_ = command.Wait()
		return fmt.Errorf("read transcriber output: %w", err)
	}
	if err := command.Wait(); err != nil {
		return fmt.Errorf("transcriber: %w", err)
	}
	return nil
}

func msOffset(seconds decimal.Decimal) time.Duration {
	ms := seconds.Mul(decimal.NewFromInt(1000)).IntPart()
	return time.Duration(ms) * time.Millisecond
}
