package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/stemsi/aptiq-proctor/internal/clock"
	"github.com/stemsi/aptiq-proctor/internal/config"
	"github.com/stemsi/aptiq-proctor/internal/gateway"
	"github.com/stemsi/aptiq-proctor/internal/logger"
	"github.com/stemsi/aptiq-proctor/internal/session"
	"github.com/stemsi/aptiq-proctor/internal/tui"
)

const usage = `aptiq: take proctored aptitude tests from the terminal

Usage:
  aptiq login [-email address]   sign in and store the token
  aptiq logout                   forget the stored token
  aptiq whoami                   show the signed-in user
  aptiq tests                    list available tests
  aptiq take <test-id>           start a test
  aptiq review <attempt-id>      show a completed attempt

Environment: APTIQ_API_URL, APTIQ_TOKEN, APTIQ_TOKEN_FILE, LOG_FILE, LOG_LEVEL
`

type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	tokens *gateway.TokenFile
	gw     *gateway.HTTPGateway
}

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()

	// The terminal belongs to the UI, so logs only ever go to a file.
	logOut, err := logger.OpenFile(cfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logOut.Close()
	log := logger.Setup(cfg.LogLevel, "json", logOut)

	a := &app{cfg: cfg, log: log, tokens: gateway.NewTokenFile(cfg.TokenFile)}
	var tokens gateway.TokenSource = a.tokens
	if cfg.Token != "" {
		tokens = gateway.StaticToken(cfg.Token)
	}
	a.gw = gateway.NewHTTPGateway(cfg.APIURL, tokens, cfg.RequestTimeout, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()[1:]
	switch flag.Arg(0) {
	case "login":
		err = a.login(ctx, args)
	case "logout":
		err = a.tokens.Clear()
		if err == nil {
			fmt.Println("Logged out.")
		}
	case "whoami":
		err = a.whoami(ctx)
	case "tests":
		err = a.listTests(ctx)
	case "take":
		err = a.take(ctx, args)
	case "review":
		err = a.review(ctx, args)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.Error().Err(err).Str("command", flag.Arg(0)).Msg("Command failed")
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := bufio.NewReader(os.Stdin)
	if *email == "" {
		fmt.Print("Email: ")
		line, err := in.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read email: %w", err)
		}
		*email = strings.TrimSpace(line)
	}

	password, err := readPassword(in)
	if err != nil {
		return err
	}

	sess, err := a.gw.Login(ctx, *email, password)
	var re *gateway.RequestError
	if errors.As(err, &re) && re.Status == http.StatusUnauthorized {
		return errors.New("invalid email or password")
	}
	if err != nil {
		return err
	}
	if err := a.tokens.Save(sess.Token); err != nil {
		return err
	}

	a.log.Info().Str("user_id", sess.User.ID).Msg("Logged in")
	fmt.Printf("Logged in as %s (%s).\n", sess.User.Name, sess.User.Role)
	return nil
}

// readPassword reads without echo on a terminal and falls back to a plain
// line when stdin is piped.
func readPassword(in *bufio.Reader) (string, error) {
	fmt.Print("Password: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *app) whoami(ctx context.Context) error {
	u, err := a.gw.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s <%s> (%s)\n", u.Name, u.Email, u.Role)
	return nil
}

func (a *app) listTests(ctx context.Context) error {
	tests, err := a.gw.ListTests(ctx)
	if err != nil {
		return err
	}
	if len(tests) == 0 {
		fmt.Println("No tests available.")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "MINUTES", "QUESTIONS", "MARKS")
	for _, test := range tests {
		minutes := "-"
		if test.TimeLimitMinutes > 0 {
			minutes = strconv.Itoa(test.TimeLimitMinutes)
		}
		t.Row(test.ID, test.Title, minutes, strconv.Itoa(test.QuestionCount), strconv.Itoa(test.TotalMarks))
	}
	fmt.Println(t.Render())
	return nil
}

func (a *app) take(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: aptiq take <test-id>")
	}
	testID := args[0]

	test, err := a.gw.GetTest(ctx, testID)
	if err != nil {
		return err
	}
	fmt.Println(tui.RenderInstructions(test, a.cfg.MaxWarnings))
	fmt.Print("Press Enter to begin, or ctrl+c to cancel. ")
	if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}

	host := tui.NewTerminalHost()
	ctrl := session.New(a.gw, clock.New(nil), host, testID, session.Options{
		DefaultTimeLimit:  a.cfg.DefaultTimeLimit,
		MaxWarnings:       a.cfg.MaxWarnings,
		BestEffortTimeout: a.cfg.BestEffortTimeout,
	}, a.log)
	defer ctrl.Close()

	p := tea.NewProgram(
		tui.NewExamModel(ctx, ctrl, host),
		tea.WithContext(ctx),
		tea.WithReportFocus(),
		tea.WithMouseCellMotion(),
	)
	host.Attach(p)

	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run exam screen: %w", err)
	}

	m, ok := final.(tui.ExamModel)
	if !ok {
		return nil
	}
	v := m.Snapshot()
	switch {
	case v.Submitted:
		return a.printReview(ctx, v.AttemptID)
	case v.Status == session.StatusFailed && v.Failure == session.FailureStart:
		return v.Err
	case v.AttemptID != "":
		fmt.Printf("You left the test. Attempt %s is still open until it expires.\n", v.AttemptID)
	}
	return nil
}

func (a *app) review(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: aptiq review <attempt-id>")
	}
	return a.printReview(ctx, args[0])
}

func (a *app) printReview(ctx context.Context, attemptID string) error {
	r, err := a.gw.FetchReview(ctx, attemptID)
	if err != nil {
		return err
	}
	fmt.Println(tui.RenderReview(r))
	return nil
}

// describe turns gateway errors into something a student can act on.
func describe(err error) string {
	var re *gateway.RequestError
	if errors.As(err, &re) {
		switch re.Status {
		case 0:
			return "Could not reach the server. Check APTIQ_API_URL and your connection."
		case http.StatusUnauthorized:
			return "You are not signed in, or your session expired. Run: aptiq login"
		case http.StatusNotFound:
			return "Not found."
		}
	}
	if errors.Is(err, session.ErrStartFailed) {
		return "The test could not be started. Try again in a moment."
	}
	return err.Error()
}
