package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aretw0/consult/internal/logging"
	"github.com/aretw0/consult/internal/presentation/tui"
	"github.com/aretw0/consult/pkg/domain"
	"github.com/aretw0/consult/pkg/session"
)

// Options configures an interactive consultation.
type Options struct {
	In  io.Reader
	Out io.Writer
	// Targets skips the selection prompt for the first consultation.
	Targets []domain.Target
	// Render turns markdown into terminal output. Nil prints markdown as is.
	Render func(string) (string, error)
	// ShowTrace prints the rule trace after every answer.
	ShowTrace bool
	Logger    *slog.Logger
}

const helpText = `y = はい, n = いいえ, u = 分からない
b = 前の質問に戻る, r = 最初からやり直す, t = 推論過程, q = 終了`

type console struct {
	ctrl   *session.Controller
	opts   Options
	in     *bufio.Scanner
	logger *slog.Logger
}

// errEOF ends the loop when input runs out.
var errEOF = errors.New("end of input")

// Run drives ctrl from line-based input until the user quits or input ends.
func Run(ctx context.Context, ctrl *session.Controller, opts Options) error {
	c := &console{
		ctrl:   ctrl,
		opts:   opts,
		in:     bufio.NewScanner(opts.In),
		logger: opts.Logger,
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}

	err := c.loop(ctx)
	if errors.Is(err, errEOF) {
		return nil
	}
	return err
}

func (c *console) loop(ctx context.Context) error {
	targets := c.opts.Targets
	for {
		if c.ctrl.Snapshot().Phase() == domain.PhaseIdle {
			if err := c.start(ctx, targets); err != nil {
				return err
			}
			targets = nil
		}

		snap := c.ctrl.Snapshot()
		if snap.Finished {
			c.markdown(tui.ResultMarkdown(snap, c.ctrl.Catalog()))
			c.printf("%s r = やり直す, b = 戻る, t = 推論過程, q = 終了\n", tui.PhaseBadge(snap.Phase()))
		} else {
			c.markdown(tui.QuestionMarkdown(snap, c.ctrl.Catalog()))
			c.printf("%s [y/n/u] (h = help)\n", tui.PhaseBadge(snap.Phase()))
		}

		line, err := c.readLine(ctx)
		if err != nil {
			return err
		}

		cmd := ParseCommand(line)
		switch cmd.Kind {
		case CmdAnswer:
			if snap.Finished {
				c.printf(">>> 診断は完了しています。\n")
				continue
			}
			_, err = c.ctrl.Answer(ctx, snap.CurrentQuestion, cmd.Answer)
			if err == nil && c.opts.ShowTrace {
				c.showTrace(ctx)
			}
		case CmdBack:
			if !snap.CanGoBack() {
				c.printf(">>> これ以上戻れません。\n")
				continue
			}
			_, err = c.ctrl.Back(ctx)
		case CmdRestart:
			c.ctrl.Restart()
			c.logger.Info("Consultation restarted", "session_id", snap.ID)
		case CmdTrace:
			c.showTrace(ctx)
		case CmdHelp:
			c.printf("%s\n", helpText)
		case CmdQuit:
			return nil
		default:
			c.printf(">>> 入力を認識できません: %q\n%s\n", line, helpText)
		}
		if err != nil {
			c.report(err)
		}
	}
}

// start prompts for targets until a consultation starts.
func (c *console) start(ctx context.Context, targets []domain.Target) error {
	for {
		if len(targets) == 0 {
			var err error
			if targets, err = c.selectTargets(ctx); err != nil {
				return err
			}
		}
		_, err := c.ctrl.Start(ctx, targets)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.report(err)
		targets = nil
	}
}

func (c *console) selectTargets(ctx context.Context) ([]domain.Target, error) {
	infos := c.ctrl.Catalog().Infos()
	for {
		c.printf("診断するビザタイプを選択してください:\n")
		for i, info := range infos {
			c.printf("  %d) %s\n", i+1, info.Title)
		}
		c.printf("  a) すべてのビザタイプ\n")

		line, err := c.readLine(ctx)
		if err != nil {
			return nil, err
		}
		if t, ok := pickTarget(infos, line); ok {
			return []domain.Target{t}, nil
		}
		c.printf(">>> 選択肢にありません: %q\n", line)
	}
}

func pickTarget(infos []domain.TargetInfo, line string) (domain.Target, bool) {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return "", false
	case "a", "all":
		return domain.TargetAll, true
	}
	if n, err := strconv.Atoi(line); err == nil {
		if n >= 1 && n <= len(infos) {
			return infos[n-1].ID, true
		}
		return "", false
	}
	for _, info := range infos {
		if strings.EqualFold(string(info.ID), line) {
			return info.ID, true
		}
	}
	return "", false
}

func (c *console) showTrace(ctx context.Context) {
	t, err := c.ctrl.RefreshTrace(ctx)
	if err != nil {
		c.report(err)
	}
	if t == nil {
		return
	}
	c.markdown(tui.TraceMarkdown(t.Result))
}

func (c *console) report(err error) {
	c.logger.Warn("Operation failed", "err", err)
	switch {
	case errors.Is(err, domain.ErrServiceUnavailable):
		c.printf("!!! 推論サービスに接続できません: %v\n", err)
	case errors.Is(err, domain.ErrTraceFetchFailed):
		c.printf("!!! 推論過程を取得できませんでした: %v\n", err)
	default:
		c.printf("!!! %v\n", err)
	}
}

func (c *console) readLine(ctx context.Context) (string, error) {
	c.printf("> ")
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		c.printf("\n")
		return "", errEOF
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.in.Text(), nil
}

func (c *console) markdown(md string) {
	if c.opts.Render != nil {
		if out, err := c.opts.Render(md); err == nil {
			c.printf("%s", out)
			return
		}
	}
	c.printf("%s\n", md)
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.opts.Out, format, args...)
}
