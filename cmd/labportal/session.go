package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/abduss/labportal/internal/auth"
	"github.com/abduss/labportal/internal/session"
	"github.com/spf13/cobra"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session tokens",
	Long: `Sign in to the identity service. The password is read from --password,
then LABPORTAL_PASSWORD, then the first line of stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		password, err := resolvePassword(loginPassword, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := a.session.Login(ctx, auth.Credentials{Username: loginUsername, Password: password}); err != nil {
			return describeError(err)
		}
		return writeSession(cmd.OutOrStdout(), a.session.State(), a.session.TimeUntilExpiry())
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		a.session.Logout(ctx)
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user, role and permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.session.Init(ctx); err != nil {
			return describeError(err)
		}
		return writeSession(cmd.OutOrStdout(), a.session.State(), a.session.TimeUntilExpiry())
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Password (prefer LABPORTAL_PASSWORD or stdin)")
	_ = loginCmd.MarkFlagRequired("username")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

func resolvePassword(flag string, stdin io.Reader) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("LABPORTAL_PASSWORD"); env != "" {
		return env, nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// describeError turns a classified failure into a one-line message, with field errors appended.
func describeError(err error) error {
	var authErr *auth.Error
	if !errors.As(err, &authErr) {
		return err
	}
	msg := authErr.Message
	if msg == "" {
		msg = authErr.Kind.String()
	}
	for _, name := range sortedKeys(authErr.Fields) {
		msg += fmt.Sprintf("\n  %s: %s", name, strings.Join(authErr.Fields[name], "; "))
	}
	return errors.New(msg)
}

type sessionOutput struct {
	Authenticated bool       `json:"authenticated"`
	User          *auth.User `json:"user,omitempty"`
	Role          auth.Role  `json:"role,omitempty"`
	Permissions   []string   `json:"permissions"`
	ExpiresIn     string     `json:"expires_in,omitempty"`
}

func writeSession(w io.Writer, st session.State, remaining time.Duration) error {
	out := sessionOutput{
		Authenticated: st.IsAuthenticated,
		User:          st.User,
		Role:          st.Role(),
		Permissions:   st.Permissions.Keys(),
	}
	if st.IsAuthenticated {
		out.ExpiresIn = remaining.Round(time.Second).String()
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if !st.IsAuthenticated {
		_, err := fmt.Fprintln(w, "Not signed in.")
		return err
	}
	fmt.Fprintf(w, "Signed in as %s (%s)\n", st.User.Username, st.User.Email)
	fmt.Fprintf(w, "Role:        %s\n", out.Role)
	fmt.Fprintf(w, "Idle expiry: %s\n", out.ExpiresIn)
	fmt.Fprintln(w, "Permissions:")
	for _, p := range out.Permissions {
		fmt.Fprintf(w, "  - %s\n", p)
	}
	return nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
