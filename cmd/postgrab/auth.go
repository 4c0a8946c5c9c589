package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"postgrab/pkg/auth"
	"postgrab/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored session cookies",
	Long: `Manage the session cookies sent with API requests.

Sessions are stored per site using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (POSTGRAB_SESSION, read only)

Public content needs no session at all.`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [domain]",
	Short: "Store the session cookie of a site",
	Long: `Store the session cookie of a site in the system keychain or encrypted file.

You will be prompted for:
  - The site (if not provided), e.g. kemono.su
  - The session cookie value (hidden as you type)
  - A User-Agent (optional, press Enter to keep the configured one)`,
	Example: `  # Interactive login
  postgrab auth login

  # Login for a specific site
  postgrab auth login kemono.su`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:     "logout <domain>",
	Short:   "Remove the stored session of a site",
	Example: `  postgrab auth logout kemono.su`,
	Args:    cobra.ExactArgs(1),
	RunE:    runLogout,
}

// statusCmd represents the auth status command
var statusCmd = &cobra.Command{
	Use:   "status [domain]",
	Short: "Show which session would be used",
	Long: `Show the session postgrab would send to a site, with the cookie masked.

Without a domain, the session from the environment is shown if one is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored sessions",
	Long:  `List all stored sessions with the cookie values masked.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(statusCmd)
	authCmd.AddCommand(listCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize session manager", err.Error())
		return err
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	var domain string
	if len(args) > 0 {
		domain = args[0]
	}
	auth.WriteSessionGuide(out, domain)
	fmt.Fprintln(out)

	if domain == "" {
		fmt.Fprint(out, "🌐 Site (e.g. kemono.su): ")
		domain, err = readLine(reader)
		if err != nil {
			ui.PrintError("Failed to read site", err.Error())
			return err
		}
	}
	domain = auth.NormalizeDomain(domain)
	if domain == "" {
		ui.PrintError("A site is required")
		return errors.New("no site given")
	}

	if existing, _ := manager.Retrieve(domain); existing != nil && existing.Domain == domain {
		fmt.Fprintf(out, "\n⚠️  A session for '%s' already exists. Replace it? (y/N): ", domain)
		answer, _ := readLine(reader)
		if !strings.HasPrefix(strings.ToLower(answer), "y") {
			return nil
		}
	}

	fmt.Fprintf(out, "\n🔐 %q cookie value (hidden): ", auth.SessionCookie)
	value, err := readPassword(reader)
	if err != nil {
		ui.PrintError("Failed to read session", err.Error())
		return err
	}
	if value == "" {
		ui.PrintError("The session value is empty")
		return errors.New("empty session value")
	}

	fmt.Fprint(out, "🧭 User-Agent (press Enter to keep the configured one): ")
	userAgent, _ := readLine(reader)

	session := &auth.Session{Domain: domain, Value: value, UserAgent: userAgent}
	fmt.Fprintln(out, "\n💾 Storing session securely...")
	if err := manager.Store(session); err != nil {
		ui.PrintError("Failed to store session", err.Error())
		return err
	}

	ui.PrintSuccess("Session saved: " + domain)
	fmt.Fprintf(out, "   Cookie: %s\n", auth.Sanitize(session).Value)
	fmt.Fprintln(out, "\n⚠️  Never share your session cookie or config files!")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize session manager", err.Error())
		return err
	}

	domain := auth.NormalizeDomain(args[0])
	if err := manager.Delete(domain); err != nil {
		ui.PrintError("Failed to remove session", err.Error())
		return err
	}
	ui.PrintSuccess("Session removed: " + domain)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize session manager", err.Error())
		return err
	}

	var domain string
	if len(args) > 0 {
		domain = args[0]
	}
	session, err := manager.Retrieve(domain)
	if err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			ui.PrintInfo("No session", "requests are sent without a session cookie")
			return nil
		}
		return err
	}
	printSession(cmd.OutOrStdout(), 0, session)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize session manager", err.Error())
		return err
	}

	sessions, err := manager.List()
	if err != nil {
		ui.PrintError("Failed to list sessions", err.Error())
		return err
	}
	if len(sessions) == 0 {
		ui.PrintInfo("No stored sessions", "Use 'postgrab auth login' to add one")
		return nil
	}

	ui.PrintHighlight("Stored Sessions")
	fmt.Fprintln(cmd.OutOrStdout())
	for i, s := range sessions {
		printSession(cmd.OutOrStdout(), i+1, s)
	}
	return nil
}

func printSession(w io.Writer, n int, session *auth.Session) {
	s := auth.Sanitize(session)
	if n > 0 {
		fmt.Fprintf(w, "%d. Site: %s\n", n, s.Domain)
	} else {
		fmt.Fprintf(w, "Site: %s\n", s.Domain)
	}
	fmt.Fprintf(w, "   Cookie: %s\n", s.Value)
	if s.UserAgent != "" {
		fmt.Fprintf(w, "   User-Agent: %s\n", s.UserAgent)
	}
	if !s.LastModified.IsZero() {
		fmt.Fprintf(w, "   Last Modified: %s\n", s.LastModified.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(w)
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads a secret without echo when stdin is a terminal, and
// falls back to a plain line otherwise.
func readPassword(r *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}
	return readLine(r)
}
