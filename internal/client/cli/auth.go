package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/mkarpov/sshvault/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts the user for a username and password and attempts to
// create a new account via the AuthService. The password byte slice is
// wiped before returning.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword("Enter password", os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.authService.Register(ctx, userName, password); err != nil {
		return err
	}

	fmt.Println("Success! You can now log in.")
	return nil
}

// Login prompts the user for credentials and tries to authenticate.
//
// The method first attempts an online login. If the server is unreachable it
// falls back to offline login against the cached verifier. On success it
// sets a.masterKey and updates connectivity Mode:
//   - ModeOnline if online login succeeds (background sync starts),
//   - ModeOffline if offline login succeeds,
//   - ModeDisabled if both fail.
//
// The password is wiped before returning. A nil error does not imply
// ModeOnline; the status line reflects the final mode.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword("Enter password", os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	var (
		masterKey []byte
		mode      Mode
	)

	masterKey, err = a.authService.OnlineLogin(ctx, userName, password)
	if err != nil {
		if errors.Is(err, common.ErrTransport) || errors.Is(err, common.ErrUnavailable) {
			log.Printf("Server unavailable, trying offline login...")
			masterKey, err = a.authService.OfflineLogin(ctx, userName, password)
			if err != nil {
				log.Printf("Offline login unsuccessful: %s", err.Error())
				mode = ModeDisabled
			} else {
				log.Printf("Offline login successful")
				mode = ModeOffline
			}
		} else {
			log.Printf("Login unsuccessful: %s", err.Error())
			mode = ModeDisabled
		}
	} else {
		log.Printf("Login successful")
		mode = ModeOnline
	}

	a.masterKey = masterKey
	a.userName = userName
	a.setMode(mode)

	if mode == ModeOnline {
		a.startSync(ctx)
	}
	return nil
}

// Logout stops the background sync, clears cached offline auth data, and
// drops the in-memory master key.
func (a *App) Logout(ctx context.Context) error {
	a.stopSync()
	if err := a.authService.ClearOfflineData(ctx); err != nil {
		return err
	}
	common.WipeByteArray(a.masterKey)
	a.masterKey = nil
	a.userName = ""
	return nil
}
