// Package cli is the terminal front-end of a try-on session.
//
// A Shell reads one command per line, runs it against the session
// controller, waits for the session to settle and prints what changed.
// Logging in works like the web page: open the login URL in a browser, then
// paste the address the backend redirected to (it carries "#token=...").
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sakif/tryon-studio/internal/apperror"
	"github.com/sakif/tryon-studio/internal/auth"
	"github.com/sakif/tryon-studio/internal/gallery"
	"github.com/sakif/tryon-studio/internal/model"
	"github.com/sakif/tryon-studio/internal/repository"
	"github.com/sakif/tryon-studio/internal/tryon"
)

// errQuit ends Run without an error.
var errQuit = errors.New("quit")

// Shell wires one controller to a terminal.
type Shell struct {
	Controller *tryon.Controller
	Feed       *gallery.Feed
	Nav        *auth.FragmentNavigator

	// Profiles lists stored credentials for "profiles"; optional.
	Profiles  repository.CredentialRepository
	LoginURL  string
	ImageBase string
	ReadFile  func(name string) ([]byte, error)
	Out       io.Writer
	Logger    *slog.Logger

	// SettleTimeout bounds the wait after each command; 0 means 30s.
	SettleTimeout time.Duration
}

type command struct {
	usage string
	run   func(ctx context.Context, args []string) error
}

func (s *Shell) commands() map[string]command {
	return map[string]command{
		"help":     {"help", s.help},
		"status":   {"status", s.status},
		"login":    {"login <redirect-url|token>", s.login},
		"logout":   {"logout", s.logout},
		"retry":    {"retry", s.retry},
		"list":     {"list [person|garment]", s.list},
		"select":   {"select <person|garment> <id>", s.selectPhoto},
		"reload":   {"reload <person|garment>", s.reload},
		"upload":   {"upload <person|garment> <file>", s.upload},
		"generate": {"generate", s.generate},
		"results":  {"results", s.results},
		"shop":     {"shop [reset]", s.shop},
		"profiles": {"profiles", s.profiles},
		"quit":     {"quit", func(context.Context, []string) error { return errQuit }},
	}
}

// Run reads commands from in until EOF, "quit" or ctx is done.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	cmds := s.commands()
	scanner := bufio.NewScanner(in)

	s.printState(s.Controller.State())
	s.prompt()
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			s.prompt()
			continue
		}

		cmd, ok := cmds[strings.ToLower(fields[0])]
		if !ok {
			s.printf("unknown command %q, try \"help\"\n", fields[0])
			s.prompt()
			continue
		}
		err := cmd.run(ctx, fields[1:])
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			s.printf("error: %s\n", apperror.Message(err))
		}
		s.prompt()
	}
	return scanner.Err()
}

// Exec runs a single command line, as Run would.
func (s *Shell) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, ok := s.commands()[strings.ToLower(fields[0])]
	if !ok {
		return fmt.Errorf("cli: unknown command %q", fields[0])
	}
	if err := cmd.run(ctx, fields[1:]); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

func (s *Shell) prompt() {
	s.printf("tryon> ")
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.Out, format, args...)
}

// settle waits for the work a command started, then prints the new state.
func (s *Shell) settle(ctx context.Context) error {
	timeout := s.SettleTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.Controller.Settle(ctx); err != nil {
		return fmt.Errorf("cli: waiting for the session: %w", err)
	}
	s.printState(s.Controller.State())
	return nil
}

func parseKindArg(args []string, i int) (model.Kind, error) {
	if len(args) <= i {
		return "", apperror.ValidationFailed("kind", "Name a kind: person or garment.")
	}
	k, err := model.ParseKind(args[i])
	if err != nil {
		return "", apperror.ValidationFailed("kind", fmt.Sprintf("Unknown photo kind %q.", args[i]))
	}
	return k, nil
}

// =========================================================================
// COMMANDS
// =========================================================================

func (s *Shell) help(ctx context.Context, args []string) error {
	cmds := s.commands()
	names := []string{"status", "login", "logout", "retry", "list", "select", "reload", "upload", "generate", "results", "shop", "profiles", "help", "quit"}
	for _, n := range names {
		s.printf("  %s\n", cmds[n].usage)
	}
	if s.LoginURL != "" {
		s.printf("log in at %s, then paste the address you land on after \"login\"\n", s.LoginURL)
	}
	return nil
}

func (s *Shell) status(ctx context.Context, args []string) error {
	s.printState(s.Controller.State())
	return nil
}

func (s *Shell) login(ctx context.Context, args []string) error {
	if len(args) == 0 {
		if s.LoginURL != "" {
			s.printf("open %s and paste the address you land on\n", s.LoginURL)
		}
		return apperror.ValidationFailed("token", "Paste the redirect address or the token.")
	}
	raw := args[0]
	fragment := "token=" + raw
	if strings.Contains(raw, "#") {
		u, err := auth.ParseURLNavigator(raw)
		if err != nil {
			return apperror.ValidationFailed("token", "That address could not be read.")
		}
		fragment = u.Fragment()
		u.ClearFragment()
		if _, ok := auth.ExtractFragmentToken(fragment); !ok {
			return apperror.ValidationFailed("token", "That address carries no token.")
		}
	}
	s.Nav.Set(fragment)
	if err := s.Controller.Resolve(ctx); err != nil {
		return err
	}
	return s.settle(ctx)
}

func (s *Shell) logout(ctx context.Context, args []string) error {
	if err := s.Controller.Logout(ctx); err != nil {
		return err
	}
	return s.settle(ctx)
}

func (s *Shell) retry(ctx context.Context, args []string) error {
	if err := s.Controller.Resolve(ctx); err != nil {
		return err
	}
	return s.settle(ctx)
}

func (s *Shell) list(ctx context.Context, args []string) error {
	kinds := model.Kinds
	if len(args) > 0 {
		k, err := parseKindArg(args, 0)
		if err != nil {
			return err
		}
		kinds = []model.Kind{k}
	}

	st := s.Controller.State()
	tw := tabwriter.NewWriter(s.Out, 0, 4, 2, ' ', 0)
	for _, k := range kinds {
		v := st.View(k)
		fmt.Fprintf(tw, "%s photos (%s)\n", k.Noun(), v.Status)
		if v.Message != "" {
			fmt.Fprintf(tw, "  %s\n", v.Message)
		}
		for _, p := range v.Inventory {
			mark := " "
			if v.Selected != nil && v.Selected.ID == p.ID {
				mark = "*"
			}
			fmt.Fprintf(tw, "  %s\t%d\t%s\n", mark, p.ID, p.Filename)
		}
	}
	return tw.Flush()
}

func (s *Shell) selectPhoto(ctx context.Context, args []string) error {
	k, err := parseKindArg(args, 0)
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return apperror.ValidationFailed("id", "Name the photo id to select.")
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return apperror.ValidationFailed("id", fmt.Sprintf("%q is not a photo id.", args[1]))
	}
	if err := s.Controller.OnSelect(ctx, k, id); err != nil {
		return err
	}
	s.printState(s.Controller.State())
	return nil
}

func (s *Shell) reload(ctx context.Context, args []string) error {
	k, err := parseKindArg(args, 0)
	if err != nil {
		return err
	}
	if err := s.Controller.Reload(ctx, k); err != nil {
		return err
	}
	return s.settle(ctx)
}

func (s *Shell) upload(ctx context.Context, args []string) error {
	k, err := parseKindArg(args, 0)
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return apperror.ValidationFailed("file", "Please choose a file to upload.")
	}
	path := args[1]
	data, err := s.ReadFile(path)
	if err != nil {
		return apperror.ValidationFailed("file", fmt.Sprintf("Cannot read %s.", path))
	}
	if err := s.Controller.OnUpload(ctx, k, filepath.Base(path), data); err != nil {
		return err
	}
	return s.settle(ctx)
}

func (s *Shell) generate(ctx context.Context, args []string) error {
	if err := s.Controller.OnGenerate(ctx); err != nil {
		return err
	}
	s.printf("%s\n", tryon.TextGenerating)
	return s.settle(ctx)
}

func (s *Shell) results(ctx context.Context, args []string) error {
	st := s.Controller.State()
	if st.ResultsText != "" {
		s.printf("%s\n", st.ResultsText)
		return nil
	}
	for i, u := range st.ResultURLs(s.ImageBase) {
		s.printf("  %d. %s\n", i+1, u)
	}
	return nil
}

func (s *Shell) shop(ctx context.Context, args []string) error {
	if len(args) > 0 && strings.EqualFold(args[0], "reset") {
		s.Feed.Reset()
	}
	page, err := s.Feed.Next(ctx)
	if err != nil {
		s.Logger.Warn("garment feed unavailable", slog.String("error", err.Error()))
		s.printf("%s\n", page.Text)
		return nil
	}
	if page.Text != "" {
		s.printf("%s\n", page.Text)
		return nil
	}
	s.printf("%s\n", gallery.TextBrowseOnly)
	tw := tabwriter.NewWriter(s.Out, 0, 4, 2, ' ', 0)
	for _, it := range page.Items {
		fmt.Fprintf(tw, "  %s\t%s\n", it.Title, it.ImageURL)
	}
	return tw.Flush()
}

func (s *Shell) profiles(ctx context.Context, args []string) error {
	if s.Profiles == nil {
		s.printf("no credential store configured\n")
		return nil
	}
	list, err := s.Profiles.ListCredentials(ctx, repository.ListOptions{})
	if err != nil {
		return fmt.Errorf("cli: listing profiles: %w", err)
	}
	if len(list) == 0 {
		s.printf("no stored profiles\n")
		return nil
	}
	tw := tabwriter.NewWriter(s.Out, 0, 4, 2, ' ', 0)
	for _, c := range list {
		fmt.Fprintf(tw, "  %s\tuser %d\tupdated %s\n", c.Profile, c.UserID, c.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// =========================================================================
// RENDERING
// =========================================================================

func (s *Shell) printState(st tryon.State) {
	switch {
	case st.Resolving:
		s.printf("signing in...\n")
	case st.Identity != nil:
		s.printf("signed in as %s\n", st.Identity.DisplayName)
	case st.IdentityError != "":
		s.printf("identity unavailable: %s (try \"retry\")\n", st.IdentityError)
	case st.LoginPrompt:
		s.printf("%s\n", tryon.TextLoginRequired)
	}

	for _, v := range []tryon.KindView{st.Person, st.Garment} {
		line := v.Placeholder
		if v.Selected != nil {
			line = fmt.Sprintf("#%d %s", v.Selected.ID, v.ImageURL)
		}
		if v.Message != "" && st.Identity != nil {
			line += " (" + v.Message + ")"
		}
		if v.UploadError != "" {
			line += " [upload failed: " + v.UploadError + "]"
		}
		s.printf("  %-7s %s\n", v.Kind.Noun()+":", line)
	}

	if g := st.Generation; g.Text != "" || g.ImageURL != "" {
		if g.ImageURL != "" {
			s.printf("  result: %s\n", g.ImageURL)
		} else {
			s.printf("  result: %s\n", g.Text)
		}
	}
}
