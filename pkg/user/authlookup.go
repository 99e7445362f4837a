package user

import (
	"context"
	"fmt"

	"github.com/keyward/keyward/pkg/authn"
)

// AuthLookup adapts a Store (plus the Application it belongs to) to
// pkg/authn.UserLookup, translating between this package's User record and
// the narrower AuthUser shape the AuthEngine verifies credentials against.
type AuthLookup struct {
	Store        *Store
	Applications ApplicationLookup
}

// NewAuthLookup builds an AuthLookup over a Store scoped to one
// Application's schema.
func NewAuthLookup(store *Store, apps ApplicationLookup) *AuthLookup {
	return &AuthLookup{Store: store, Applications: apps}
}

// GetByLoginAndApplication satisfies pkg/authn.UserLookup.
func (a *AuthLookup) GetByLoginAndApplication(ctx context.Context, login string, applicationID int) (*authn.AuthUser, error) {
	u, err := a.Store.GetByLoginAndApplication(ctx, login, applicationID)
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if u == nil {
		return nil, nil
	}
	if u.PasswordHash == nil {
		return nil, nil
	}

	appName := ""
	if app, err := a.Applications.GetByID(ctx, applicationID); err == nil && app != nil {
		appName = app.Name
	}

	// An unvalidated account carries only ROLE_VALIDATION regardless of the
	// roles stored on the record: its stored roles take effect only once
	// email validation completes.
	roles := u.Roles
	if !u.IsValidated {
		roles = []string{"ROLE_VALIDATION"}
	}

	return &authn.AuthUser{
		ID:              u.ID,
		Login:           u.Login,
		PasswordHash:    *u.PasswordHash,
		ApplicationID:   u.ApplicationID,
		ApplicationName: appName,
		Is2FAActivated:  u.Is2FAActivated,
		TwoFASecret:     u.TwoFASecret,
		Roles:           roles,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Email:           u.Email,
	}, nil
}
