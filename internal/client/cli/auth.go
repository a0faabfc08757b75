package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/kappi/internal/client/models"
	"github.com/dmitrijs2005/kappi/internal/client/services"
	"github.com/dmitrijs2005/kappi/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for name, email and password (twice) and creates an
// account. The password buffers are wiped before returning.
func (a *App) Register(ctx context.Context) error {
	fullName, err := getSimpleText(a.reader, "Enter full name", os.Stdout)
	if err != nil {
		return err
	}

	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout, "Enter password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	confirm, err := getPassword(os.Stdout, "Confirm password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	user, err := a.session.Register(ctx, fullName, email, string(password), string(confirm))
	if err != nil {
		return err
	}

	printlnFn(fmt.Sprintf("Welcome, %s!", user.FullName))
	return nil
}

// Login prompts for credentials and signs in. While the client is locked out
// after repeated failures, the attempt is refused before any prompt reaches
// the server.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout, "Enter password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	user, err := a.session.Login(ctx, email, string(password))
	if err != nil {
		return err
	}

	printlnFn(fmt.Sprintf("Logged in as %s", user.Email))
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	printlnFn("Logged out")
	return nil
}

// Status prints the session, the number of waiting scans and the
// connectivity mode.
func (a *App) Status(ctx context.Context) error {
	st := a.session.State()

	if st.User != nil {
		printlnFn(fmt.Sprintf("Session: %s as %s", st.Status, st.User.Email))
	} else {
		printlnFn(fmt.Sprintf("Session: %s", st.Status))
	}
	if st.Status == services.StatusLockedOut {
		printlnFn(fmt.Sprintf("Locked until: %s", st.LockoutUntil.Format(time.Kitchen)))
	} else if st.AttemptCount > 0 {
		printlnFn(fmt.Sprintf("Failed login attempts: %d of %d", st.AttemptCount, common.MaxLoginAttempts))
	}

	pending, err := a.scans.List(ctx, false)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Waiting scans: %d", len(pending)))

	if mode := a.getMode(); mode != "" {
		printlnFn(fmt.Sprintf("Connection: %s", mode))
	}
	return nil
}

// Location sets the farm location: location <lat> <lng>, then prompts for
// the address lines.
func (a *App) Location(ctx context.Context, args []string) error {
	if len(args) != 2 {
		printlnFn("Usage: location <latitude> <longitude>")
		return nil
	}

	coords, err := parseCoordinates(args[0], args[1])
	if err != nil {
		return err
	}

	var addr models.Address
	for _, f := range []struct {
		prompt string
		dst    *string
	}{
		{"Enter barangay", &addr.Barangay},
		{"Enter city/municipality", &addr.CityMunicipality},
		{"Enter province", &addr.Province},
	} {
		if *f.dst, err = getSimpleText(a.reader, f.prompt, os.Stdout); err != nil {
			return err
		}
	}

	if err := a.session.UpdateLocation(ctx, coords, addr); err != nil {
		return err
	}
	printlnFn("Location updated")
	return nil
}

// Link attaches a social account: link <provider> <providerId>.
func (a *App) Link(ctx context.Context, args []string) error {
	if len(args) != 2 {
		printlnFn("Usage: link <provider> <provider-id>")
		return nil
	}

	user, err := a.session.LinkSocial(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Linked %s to %s", args[0], user.Email))
	return nil
}

func parseCoordinates(lat, lng string) (models.Coordinates, error) {
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil || la < -90 || la > 90 {
		return models.Coordinates{}, fmt.Errorf("invalid latitude %q", lat)
	}
	lo, err := strconv.ParseFloat(lng, 64)
	if err != nil || lo < -180 || lo > 180 {
		return models.Coordinates{}, fmt.Errorf("invalid longitude %q", lng)
	}
	return models.Coordinates{Latitude: la, Longitude: lo}, nil
}
