package auth

import (
	"context"

	"github.com/tallyapp/tally/internal/models"
)

// Authenticator defines the interface for authentication implementations,
// so the HTTP layer does not care whether credentials are passwords, OAuth
// tokens or something else.
type Authenticator interface {
	// Register creates a new user account with the given email and
	// credential.
	Register(ctx context.Context, email, displayName, credential string) (*models.User, error)

	// Authenticate verifies the user's credentials and returns the user if
	// successful.
	Authenticate(ctx context.Context, email, credential string) (*models.User, error)

	// ValidateCredential checks if the credential meets the
	// implementation's requirements.
	ValidateCredential(credential string) error
}
