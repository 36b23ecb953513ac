// Package cli is the command line console. It shares the API client, session controller and
// route guard with the web console and keeps its tokens in a file in the user's config dir.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jrsteele09/go-auth-console/apiclient"
	"github.com/jrsteele09/go-auth-console/authapi"
	"github.com/jrsteele09/go-auth-console/guard"
)

// NewRootCommand builds the consolectl command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	var cfgFile string

	root := &cobra.Command{
		Use:   appName,
		Short: "Administer the auth backend from a terminal",
		Long: `consolectl signs in to the auth backend and lists its users, companies and sessions.

Example usage:
  consolectl login -u admin        # Sign in, prompting for the password
  consolectl whoami                # Show the signed-in user
  consolectl users --limit 50      # List users
  consolectl sessions revoke 42    # Revoke a session`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(viper.New(), cmd, cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.printer = NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), !cfg.NoColor)
			a.logger = newLogger(cmd.ErrOrStderr(), cfg.Verbose)
			return a.open()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .consolectl.yaml)")
	flags.String("api-url", "", "backend URL without the API prefix")
	flags.String("api-prefix", "", "backend API prefix")
	flags.Duration("timeout", 0, "per request timeout")
	flags.String("token-file", "", "where tokens are kept between runs")
	flags.Bool("no-color", false, "disable coloured output")
	flags.BoolP("verbose", "v", false, "log requests to stderr")

	root.AddCommand(
		newLoginCommand(a),
		newLogoutCommand(a),
		newWhoamiCommand(a),
		newUsersCommand(a),
		newCompaniesCommand(a),
		newSessionsCommand(a),
		newStatsCommand(a),
	)
	return root
}

// Execute runs consolectl with the process arguments.
func Execute() error {
	return NewRootCommand().Execute()
}

func newLoginCommand(a *app) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if password == "" {
				p, err := readLine(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: ")
				if err != nil {
					return err
				}
				password = p
			}

			// Settle any stored session first so it cannot overwrite the new one.
			a.restore(ctx)
			creds := authapi.Credentials{Username: strings.TrimSpace(username), Password: password}
			if err := a.session.Login(ctx, creds); err != nil {
				msg := a.session.State().Error
				a.session.ClearError()
				return errors.New(msg)
			}
			a.client.ResetRedirect()
			a.printer.Success("Signed in as %s", a.session.State().User.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.restore(cmd.Context()).IsAuthenticated {
				a.printer.Warn("Not signed in.")
				return nil
			}
			a.session.Logout(cmd.Context())
			a.printer.Success("Signed out.")
			return nil
		},
	}
}

func newWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := a.authorize(cmd.Context(), guard.RouteProfile)
			if err != nil {
				return err
			}
			u := state.User
			a.printer.Field("Username", u.Username)
			a.printer.Field("Email", u.Email)
			a.printer.Field("Name", u.FullName)
			a.printer.Field("Company", formatID(u.CompanyID))
			role := "member"
			switch {
			case state.IsRootTenant(a.cfg.RootCompanyID):
				role = "root administrator"
			case state.IsAdmin():
				role = "administrator"
			}
			a.printer.Field("Role", role)
			return nil
		},
	}
}

func listFlags(cmd *cobra.Command, opts *authapi.ListOptions) {
	cmd.Flags().IntVar(&opts.Skip, "skip", 0, "rows to skip")
	cmd.Flags().IntVar(&opts.Limit, "limit", 25, "rows to show")
}

func newUsersCommand(a *app) *cobra.Command {
	var opts authapi.ListOptions
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.authorize(cmd.Context(), guard.RouteUsers); err != nil {
				return err
			}
			users, err := a.api.Users.List(cmd.Context(), opts)
			if err != nil {
				return a.apiError(err)
			}
			rows := make([][]string, 0, len(users))
			for _, u := range users {
				rows = append(rows, []string{
					strconv.FormatInt(u.ID, 10), u.Username, u.Email, u.FullName,
					formatID(u.CompanyID), yesNo(u.IsActive), yesNo(u.IsSuperuser),
				})
			}
			return a.printer.Table([]string{"ID", "Username", "Email", "Name", "Company", "Active", "Admin"}, rows)
		},
	}
	listFlags(cmd, &opts)
	return cmd
}

func newCompaniesCommand(a *app) *cobra.Command {
	var opts authapi.ListOptions
	cmd := &cobra.Command{
		Use:   "companies",
		Short: "List companies (root administrators only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.authorize(cmd.Context(), guard.RouteCompanies); err != nil {
				return err
			}
			companies, err := a.api.Companies.List(cmd.Context(), opts)
			if err != nil {
				return a.apiError(err)
			}
			rows := make([][]string, 0, len(companies))
			for _, c := range companies {
				rows = append(rows, []string{strconv.FormatInt(c.ID, 10), c.Name, c.Domain, yesNo(c.IsActive)})
			}
			return a.printer.Table([]string{"ID", "Name", "Domain", "Active"}, rows)
		},
	}
	listFlags(cmd, &opts)
	return cmd
}

func newSessionsCommand(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List your sessions, or everyone's with --all",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			route, list := guard.RouteMySessions, a.api.MySessions
			if all {
				route, list = guard.RouteSessions, a.api.ActiveSessions
			}
			if _, err := a.authorize(cmd.Context(), route); err != nil {
				return err
			}
			sessions, err := list(cmd.Context())
			if err != nil {
				return a.apiError(err)
			}

			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				device := s.UserAgent
				if s.IsCurrent {
					device += " (this session)"
				}
				rows = append(rows, []string{
					strconv.FormatInt(s.ID, 10), s.Username, device, s.IPAddress,
					formatTime(s.LastActivity), formatTime(s.ExpiresAt),
				})
			}
			return a.printer.Table([]string{"ID", "User", "Device", "IP address", "Last active", "Expires"}, rows)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list every active session (administrators only)")

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke ID",
		Short: "Revoke a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session id %q", args[0])
			}
			if _, err := a.authorize(cmd.Context(), guard.RouteMySessions); err != nil {
				return err
			}
			if err := a.api.RevokeSession(cmd.Context(), id); err != nil {
				return a.apiError(err)
			}
			a.printer.Success("Session %d revoked.", id)
			return nil
		},
	})
	return cmd
}

func newStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show active user and session counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.authorize(cmd.Context(), guard.RouteSessions); err != nil {
				return err
			}
			stats, err := a.api.ActiveStats(cmd.Context())
			if err != nil {
				return a.apiError(err)
			}
			a.printer.Field("Active users", strconv.Itoa(stats.ActiveUsers))
			a.printer.Field("Active sessions", strconv.Itoa(stats.ActiveSessions))
			a.printer.Field("Total users", strconv.Itoa(stats.TotalUsers))
			return nil
		},
	}
}

// apiError logs the full error and returns the user facing message.
func (a *app) apiError(err error) error {
	a.logger.Debug().Err(err).Msg("Request failed")
	return errors.New(apiclient.UserMessage(err))
}

func readLine(in io.Reader, prompt io.Writer, label string) (string, error) {
	fmt.Fprint(prompt, label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
