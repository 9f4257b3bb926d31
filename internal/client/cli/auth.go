package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/services"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

func (a *App) credentials() (string, []byte, error) {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return "", nil, err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return "", nil, err
	}
	return email, password, nil
}

// Register prompts for an e-mail and password and creates an account. When
// the backend requires confirmation the user is told to check their inbox.
func (a *App) Register(ctx context.Context) error {
	email, password, err := a.credentials()
	if err != nil {
		return err
	}
	defer wipe(password)

	_, err = a.auth.SignUp(ctx, email, string(password), nil)
	if err != nil {
		fmt.Fprintf(a.out, "Registration failed: %v\n", err)
		return err
	}

	if a.auth.User() == nil {
		fmt.Fprintf(a.out, "Check %s for a confirmation link.\n", email)
		return nil
	}
	fmt.Fprintln(a.out, "Success!")
	return nil
}

// Login authenticates against the backend. When the backend cannot be
// reached the stored session, if any, is restored instead and the CLI
// switches to offline mode.
func (a *App) Login(ctx context.Context) error {
	email, password, err := a.credentials()
	if err != nil {
		return err
	}
	defer wipe(password)

	_, err = a.auth.SignIn(ctx, email, string(password))
	switch {
	case err == nil:
		a.setMode(ModeOnline)
		fmt.Fprintf(a.out, "Signed in as %s\n", email)
		return nil

	case services.IsUnavailable(err):
		a.logger.Warn(ctx, "backend unavailable, trying stored session", "error", err)
		snap := a.auth.Bootstrap(ctx, startPath)
		if snap.User == nil {
			a.setMode(ModeDisabled)
			fmt.Fprintln(a.out, "Backend unavailable and no stored session.")
			return err
		}
		a.setMode(ModeOffline)
		fmt.Fprintf(a.out, "Backend unavailable, continuing offline as %s\n", snap.User.Email)
		return nil

	default:
		fmt.Fprintf(a.out, "Login unsuccessful: %v\n", err)
		return err
	}
}

// Logout signs out remotely and always clears the local session.
func (a *App) Logout(ctx context.Context) error {
	err := a.auth.SignOut(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "Signed out locally; backend said: %v\n", err)
		return err
	}
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

func (a *App) ResetPassword(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	if err := a.auth.ResetPassword(ctx, email); err != nil {
		fmt.Fprintf(a.out, "Reset failed: %v\n", err)
		return err
	}
	fmt.Fprintln(a.out, "If the account exists, a reset link is on its way.")
	return nil
}

func (a *App) Status(ctx context.Context) error {
	snap := a.auth.Snapshot()
	fmt.Fprintf(a.out, "status=%s method=%s partial=%t admin=%t restoring=%t\n",
		snap.Status, snap.Method, snap.Partial, snap.IsAdmin, a.auth.IsSessionRestoring())
	if snap.Session != nil && snap.Session.ExpiresAt > 0 {
		fmt.Fprintf(a.out, "access token expires at %d\n", snap.Session.ExpiresAt)
	}
	return nil
}

var errNotSignedIn = errors.New("not signed in")

func (a *App) Whoami(ctx context.Context) error {
	u := a.auth.User()
	if u == nil {
		fmt.Fprintln(a.out, "Not signed in.")
		return errNotSignedIn
	}
	fmt.Fprintf(a.out, "%s (%s)\n", u.Email, u.ID)
	return nil
}

func (a *App) Role(ctx context.Context) error {
	u := a.auth.User()
	if u == nil {
		fmt.Fprintln(a.out, "Not signed in.")
		return errNotSignedIn
	}
	fmt.Fprintln(a.out, a.auth.CheckUserRole(ctx, u.ID))
	return nil
}

// Reload re-confirms the held session without restarting the CLI.
func (a *App) Reload(ctx context.Context) error {
	snap, err := a.auth.ReloadAuthState(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "Reload failed: %v\n", err)
		return err
	}
	a.setMode(modeFor(snap.Partial))
	fmt.Fprintf(a.out, "status=%s method=%s\n", snap.Status, snap.Method)
	return nil
}
