package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"

	"github.com/rescale/dualpane/internal/api"
	"github.com/rescale/dualpane/internal/core"
	"github.com/rescale/dualpane/internal/events"
	"github.com/rescale/dualpane/internal/logging"
	"github.com/rescale/dualpane/internal/models"
	"github.com/rescale/dualpane/internal/services"
	"github.com/rescale/dualpane/internal/state"
	"github.com/rescale/dualpane/internal/util/sanitize"
)

// nameWidth is the column width of entry names in listings.
const nameWidth = 40

func newShellCmd() *cobra.Command {
	var backendURL string

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Browse the local and remote side through a running backend",
		Long: `Interactive dual-pane shell.

Both panes are loaded at start: the local pane opens in the backend's
download directory, the remote pane at "/". Type "help" for commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			cfg, err := loadConfig(logger)
			if err != nil {
				return err
			}
			if backendURL != "" {
				cfg.BackendURL = backendURL
			}
			if err := cfg.ValidateClient(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			// Logs go to stderr so they do not interleave with listings.
			logger.SetOutput(os.Stderr)

			browser, err := core.New(cfg, logger)
			if err != nil {
				return err
			}
			defer browser.Events().Close()

			sh := NewShell(browser, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
			sh.interactive = stdinIsTerminal()
			return sh.Run(GetContext())
		},
	}

	cmd.Flags().StringVar(&backendURL, "backend", "", "Backend URL (default from config, http://localhost:8080)")
	return cmd
}

// Shell is a line-oriented frontend over a core.Browser.
//
// The status line and pane failures are rendered from the browser's event
// bus. Every command runs to completion before the shell reads the bus, so
// the events it published are already queued.
type Shell struct {
	browser     *core.Browser
	prompt      *prompter
	out         io.Writer
	logger      *logging.Logger
	events      <-chan events.Event
	interactive bool
}

// NewShell creates a shell reading commands from in.
func NewShell(browser *core.Browser, in io.Reader, out io.Writer, logger *logging.Logger) *Shell {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Shell{
		browser: browser,
		prompt:  newPrompter(in, out),
		out:     out,
		logger:  logger.Component("shell"),
		events:  browser.Events().Subscribe(events.EventStatusMessage, state.EventPaneError),
	}
}

// Run loads the session and executes commands until exit or end of input.
func (s *Shell) Run(ctx context.Context) error {
	defer s.browser.Events().Unsubscribe(s.events)

	if err := s.browser.Start(ctx); err != nil {
		s.printStatus()
		return err
	}
	if session, ok := s.browser.Session(); ok {
		fmt.Fprintf(s.out, "Connected to %s\n", session.Connection)
	}
	s.printPane(models.DomainLocal)
	s.printPane(models.DomainRemote)
	s.printStatus()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if s.interactive {
			fmt.Fprint(s.out, "dualpane> ")
		}
		line, err := s.prompt.readLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}

		quit, err := s.Exec(ctx, line)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// Exec runs one command line. quit is true once the session has ended.
// Operation failures are reported through the status line, so err is only
// set for unknown commands and bad arguments.
func (s *Shell) Exec(ctx context.Context, line string) (quit bool, err error) {
	args, err := parseArgs(line)
	if err != nil {
		return false, err
	}
	if len(args) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]
	s.logger.Debug().Str("cmd", cmd).Strs("args", args).Msg("command")

	switch cmd {
	case "help", "?":
		s.printHelp()
		return false, nil
	case "exit", "quit":
		return s.exit(ctx)
	}

	if s.browser.Disconnected() {
		return false, errors.New("disconnected")
	}

	switch cmd {
	case "ls":
		if len(args) == 0 {
			s.printPane(models.DomainLocal)
			s.printPane(models.DomainRemote)
			return false, nil
		}
		domain, err := parseDomain(args[0])
		if err != nil {
			return false, err
		}
		s.printPane(domain)
		return false, nil

	case "cd":
		if len(args) != 2 {
			return false, errors.New("usage: cd <local|remote> <name|path|..>")
		}
		domain, err := parseDomain(args[0])
		if err != nil {
			return false, err
		}
		s.cd(ctx, domain, args[1])
		s.afterNavigation(domain)

	case "up":
		if len(args) != 1 {
			return false, errors.New("usage: up <local|remote>")
		}
		domain, err := parseDomain(args[0])
		if err != nil {
			return false, err
		}
		s.browser.Up(ctx, domain)
		s.afterNavigation(domain)

	case "select":
		if len(args) != 2 {
			return false, errors.New("usage: select <local|remote> <name>")
		}
		domain, err := parseDomain(args[0])
		if err != nil {
			return false, err
		}
		s.browser.SelectByName(domain, sanitize.Name(args[1]))
		s.printStatus()

	case "clear":
		if len(args) != 1 {
			return false, errors.New("usage: clear <local|remote>")
		}
		domain, err := parseDomain(args[0])
		if err != nil {
			return false, err
		}
		s.browser.Pane(domain).ClearSelection()

	case "upload":
		fmt.Fprintln(s.out, "Uploading...")
		s.timed(func() error { _, err := s.browser.Upload(ctx); return err })
		s.printStatus()

	case "download":
		fmt.Fprintln(s.out, "Downloading...")
		s.timed(func() error { _, err := s.browser.Download(ctx); return err })
		s.printStatus()

	case "mkdir":
		if len(args) != 1 {
			return false, errors.New("usage: mkdir <name>")
		}
		s.browser.Mkdir(ctx, sanitize.Name(args[0]))
		s.printStatus()

	case "rename":
		if len(args) != 1 {
			return false, errors.New("usage: rename <new name>")
		}
		res, err := s.browser.Rename(ctx, sanitize.Name(args[0]))
		if err == nil && res == nil {
			fmt.Fprintln(s.out, "Name unchanged")
			return false, nil
		}
		s.printStatus()

	case "rm", "delete":
		return false, s.remove(ctx)

	case "refresh":
		s.browser.Refresh(ctx)
		s.printPane(models.DomainLocal)
		s.printPane(models.DomainRemote)
		s.printStatus()

	case "status":
		s.printSession()

	default:
		return false, fmt.Errorf("unknown command %q (type \"help\")", cmd)
	}
	return false, nil
}

func (s *Shell) cd(ctx context.Context, domain models.Domain, target string) {
	switch {
	case target == "..":
		s.browser.Up(ctx, domain)
	case isAbsolute(domain, target):
		s.browser.Navigate(ctx, domain, target)
	default:
		s.browser.Open(ctx, domain, sanitize.Name(target))
	}
}

func (s *Shell) afterNavigation(domain models.Domain) {
	if last := s.drainEvents(); last != nil && last.IsError {
		s.printStatusLine(last.Message, true)
		return
	}
	s.printPane(domain)
}

func (s *Shell) remove(ctx context.Context) error {
	sel, ok := s.browser.Remote().Pane().Selection()
	if !ok {
		return services.ErrNoSelection
	}
	what := "file"
	if sel.IsDir {
		what = "folder and everything in it"
	}
	yes, err := s.prompt.confirm(fmt.Sprintf("Delete %s %q?", what, sel.Name))
	if err != nil || !yes {
		fmt.Fprintln(s.out, "Cancelled")
		return nil
	}
	s.browser.Delete(ctx)
	s.printStatus()
	return nil
}

func (s *Shell) exit(ctx context.Context) (bool, error) {
	if s.browser.Disconnected() {
		return true, nil
	}
	yes, err := s.prompt.confirm("Disconnect and exit?")
	if err != nil || !yes {
		return false, nil
	}
	s.browser.Shutdown(ctx)
	s.printStatus()
	return true, nil
}

// timed runs a transfer and logs how long it took.
func (s *Shell) timed(fn func() error) {
	start := time.Now()
	err := fn()
	s.logger.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("transfer finished")
}

// printStatus prints the pane failures and the last status message published
// since the previous call.
func (s *Shell) printStatus() {
	if last := s.drainEvents(); last != nil {
		s.printStatusLine(last.Message, last.IsError)
	}
}

// drainEvents consumes the queued events without blocking. Pane failures are
// printed as they come; only the latest status message is returned since the
// earlier ones were transient.
func (s *Shell) drainEvents() *events.StatusMessageEvent {
	var last *events.StatusMessageEvent
	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				return last
			}
			switch e := ev.(type) {
			case *events.StatusMessageEvent:
				last = e
			case *state.ErrorEvent:
				fmt.Fprintf(s.out, "[%s] cannot open %s: %s\n", e.Domain, e.Path, errorText(e.Error))
			}
		default:
			return last
		}
	}
}

func (s *Shell) printStatusLine(msg string, isErr bool) {
	if isErr {
		fmt.Fprintf(s.out, "[error] %s\n", msg)
		return
	}
	fmt.Fprintf(s.out, "[status] %s\n", msg)
}

func errorText(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func (s *Shell) printSession() {
	session, ok := s.browser.Session()
	if !ok {
		fmt.Fprintln(s.out, "No session loaded")
		return
	}
	fmt.Fprintf(s.out, "Connection:   %s\n", session.Connection)
	fmt.Fprintf(s.out, "Download dir: %s\n", session.DownloadDir)
	fmt.Fprintf(s.out, "Local:        %s\n", s.browser.Local().Pane().CurrentPath())
	fmt.Fprintf(s.out, "Remote:       %s\n", s.browser.Remote().Pane().CurrentPath())
	s.printStatusLine(s.browser.StatusMessage())
}

func (s *Shell) printPane(domain models.Domain) {
	snap := s.browser.Pane(domain).Pane().Snapshot()

	var dirs, files int
	for _, e := range snap.Entries {
		if e.IsDir {
			dirs++
		} else {
			files++
		}
	}
	fmt.Fprintf(s.out, "%s: %s  (%s, %s)\n", domain, snap.CurrentPath, plural(dirs, "folder"), plural(files, "file"))

	for _, e := range snap.Entries {
		marker := " "
		if snap.Selection != nil && snap.Selection.Path == e.Path {
			marker = ">"
		}
		name := e.Name
		size := formatSize(e.Size)
		if e.IsDir {
			name += "/"
			size = "-"
		}
		name = runewidth.FillRight(runewidth.Truncate(name, nameWidth, "..."), nameWidth)
		modified := ""
		if !e.ModTime.IsZero() {
			modified = e.ModTime.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(s.out, " %s %s %10s  %s\n", marker, name, size, modified)
	}
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.out, `Commands:
  ls [local|remote]              show one or both panes
  cd <local|remote> <name|path>  open a folder ("..", a name, or an absolute path)
  up <local|remote>              go to the parent folder
  select <local|remote> <name>   select an entry
  clear <local|remote>           clear the selection
  upload                         upload the local selection into the remote folder
  download                       download the remote selection
  mkdir <name>                   create a folder in the remote folder
  rename <new name>              rename the remote selection
  rm                             delete the remote selection
  refresh                        reload both panes
  status                         show the session
  exit                           disconnect and exit

Quote names that contain spaces. Use single quotes for paths with backslashes.
`)
}

func parseDomain(s string) (models.Domain, error) {
	switch strings.ToLower(s) {
	case "local", "l":
		return models.DomainLocal, nil
	case "remote", "r":
		return models.DomainRemote, nil
	}
	return "", fmt.Errorf("unknown pane %q (want local or remote)", s)
}

func isAbsolute(domain models.Domain, p string) bool {
	if domain == models.DomainRemote {
		return strings.HasPrefix(p, "/")
	}
	return filepath.IsAbs(p)
}

// parseArgs splits a command line with shell quoting rules. Single quotes
// keep backslashes literal, which Windows paths need. Shell operators are
// rejected rather than silently ending the line.
func parseArgs(line string) ([]string, error) {
	p := shellwords.NewParser()
	args, err := p.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("cannot parse command: %w", err)
	}
	if p.Position >= 0 {
		return nil, fmt.Errorf("unexpected %q: quote names that contain it", []rune(line)[p.Position])
	}
	return args, nil
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
