package auth

import (
	"fmt"
	"io"
	"strings"
)

// SessionCookie is the cookie the API reads the login session from.
const SessionCookie = "session"

// WriteSessionGuide writes step-by-step instructions for copying the session
// cookie of domain out of a browser.
func WriteSessionGuide(w io.Writer, domain string) {
	if domain == "" {
		domain = "the site"
	}
	rule := strings.Repeat("=", 80)

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "📚 SESSION COOKIE GUIDE")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Most content downloads without logging in. Favorites and some")
	fmt.Fprintf(w, "restricted posts need the %q cookie of a logged-in browser.\n", SessionCookie)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "🌐 STEP 1: Log in to %s in your browser\n", domain)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "🔧 STEP 2: Open Developer Tools")
	fmt.Fprintln(w, "   • Chrome/Edge/Brave/Firefox: F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Fprintln(w, "   • Safari: enable the Develop menu in Preferences, then Cmd+Option+I")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "🍪 STEP 3: Find the cookie")
	fmt.Fprintln(w, "   1. Open the 'Application' tab (Chrome) or 'Storage' tab (Firefox)")
	fmt.Fprintln(w, "   2. Expand 'Cookies' and select the site")
	fmt.Fprintf(w, "   3. Copy the value of %q\n", SessionCookie)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "💡 TIPS:")
	fmt.Fprintln(w, "   • Copy the whole value, without quotes or semicolons")
	fmt.Fprintln(w, "   • Sessions expire; run 'postgrab auth login' again when requests start failing")
	fmt.Fprintf(w, "   • %s can be set instead for a one-off run\n", SessionEnv)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "⚠️  The cookie grants full access to your account. Never share it.")
	fmt.Fprintln(w, rule)
}
