// Package main provides a command line client for a session-cookie backend.
// The cookie jar lives for one process, so commands that need a session
// either log in with --username/--password or restore one through refresh.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-client/api"
	"github.com/jrsteele09/go-auth-client/internal/config"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/internal/logging"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	baseURL    string
	logLevel   string
	username   string
	password   string
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(report(os.Stderr, err))
	}
}

// report writes err to w and returns the exit status: 3 when the user has to
// log in again, 1 otherwise.
func report(w io.Writer, err error) int {
	var statusErr *api.StatusError
	if autherrors.As(err, &statusErr) {
		fmt.Fprintf(w, "Error: %s\n", statusErr.Message)
	} else {
		fmt.Fprintf(w, "Error: %v\n", err)
	}

	for _, target := range []error{autherrors.ErrNotLoggedIn, autherrors.ErrSessionExpired, autherrors.ErrUnauthorized} {
		if autherrors.Is(err, target) {
			fmt.Fprintln(w, "Log in with --username and --password.")
			return 3
		}
	}
	return 1
}

func rootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "authclient",
		Short:         "Session client for the PaperLink API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.baseURL, "base-url", "", "API origin, overrides BASE_URL")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&flags.username, "username", "u", "", "Log in as this user before running the command")
	cmd.PersistentFlags().StringVarP(&flags.password, "password", "p", "", "Password for --username")

	cmd.AddCommand(
		loginCmd(flags),
		getCmd(flags),
		meCmd(flags),
		logoutCmd(flags),
		navigateCmd(flags),
	)
	return cmd
}

func loginCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login [path...]",
		Short: "Log in, then GET each path with the new session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.username == "" {
				return fmt.Errorf("--username is required")
			}
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			displayAppname(s)
			if err := s.Login(cmd.Context(), flags.username, flags.password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", flags.username)

			for _, path := range args {
				if err := printGet(cmd, s, path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func getCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "GET a path through the authenticated client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := establish(cmd.Context(), s, flags); err != nil {
				return err
			}
			return printGet(cmd, s, args[0])
		},
	}
}

func meCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Confirm and print the current user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := establish(cmd.Context(), s, flags); err != nil {
				return err
			}
			if err := s.Revalidator().EnsureCurrentUser(cmd.Context()); err != nil {
				return err
			}

			user := s.CurrentUser()
			if user == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No current user")
				return nil
			}
			status := "confirmed"
			if err := s.Revalidator().Revalidated(); err != nil {
				status = "cached"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", user.Username, status)
			return nil
		},
	}
}

func logoutCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the local session and expire the server session cookie",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			if flags.username != "" {
				if err := s.Login(cmd.Context(), flags.username, flags.password); err != nil {
					return err
				}
			}
			s.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func navigateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "navigate <path>",
		Short: "Run a route transition through the navigation guard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			if flags.username != "" {
				if err := s.Login(cmd.Context(), flags.username, flags.password); err != nil {
					return err
				}
			}
			if err := s.Router().Push(cmd.Context(), args[0]); err != nil {
				return err
			}
			loc := s.Router().Location()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", loc.Route.Name, loc.Path)
			return nil
		},
	}
}

func openSession(ctx context.Context, flags *rootFlags) (*session.Session, error) {
	if flags.baseURL != "" {
		if err := os.Setenv("BASE_URL", flags.baseURL); err != nil {
			return nil, err
		}
	}
	if flags.logLevel != "" {
		if err := os.Setenv("LOG_LEVEL", flags.logLevel); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.NewWithWriter(os.Stderr, cfg.GetLogLevel(), cfg.GetEnv())
	return session.New(ctx, cfg, session.WithLogger(logger))
}

// establish logs in when credentials were given and otherwise restores the
// session from the cookie.
func establish(ctx context.Context, s *session.Session, flags *rootFlags) error {
	if flags.username != "" {
		return s.Login(ctx, flags.username, flags.password)
	}
	if !s.Bootstrap(ctx) {
		return autherrors.Wrapf(autherrors.ErrNotLoggedIn, "no session to restore")
	}
	return nil
}

func printGet(cmd *cobra.Command, s *session.Session, path string) error {
	resp, err := s.Client().Get(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", resp.Status, path)
	_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
	fmt.Fprintln(cmd.OutOrStdout())
	return err
}

func displayAppname(s *session.Session) {
	myFigure := figure.NewFigure(s.Config().GetAppName(), "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
