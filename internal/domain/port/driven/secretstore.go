package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by SecretStore operations when
// LIFESYNC_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set LIFESYNC_SECRET_KEY")

// SecretStore defines the driven port for encrypted credential persistence.
// The adapter layer owns encryption and decryption; this interface operates
// on plaintext payloads at the domain boundary. Every operation checks the
// supplied owner id against the stored owner and reports a mismatch as
// ErrNotFound, identically to an absent secret.
type SecretStore interface {
	// Store encrypts and persists a credential payload, returning the new
	// secret id.
	Store(ctx context.Context, ownerID, provider string, kind model.SecretKind, payload []byte, meta model.SecretMetadata) (string, error)

	// Retrieve decrypts and returns the payload for the given secret.
	Retrieve(ctx context.Context, secretID, ownerID string) ([]byte, error)

	// Update replaces the payload (and metadata) of an existing secret
	// without changing its id, so owning connections keep a stable reference
	// across token rotation.
	Update(ctx context.Context, secretID, ownerID string, payload []byte, meta model.SecretMetadata) error

	// Delete removes the secret.
	Delete(ctx context.Context, secretID, ownerID string) error

	// Describe returns the metadata-only record for one secret.
	Describe(ctx context.Context, secretID, ownerID string) (*model.StoredSecret, error)

	// ListForOwner returns metadata-only records for the owner's secrets.
	// Decrypted payloads are never included.
	ListForOwner(ctx context.Context, ownerID string) ([]model.StoredSecret, error)

	// IsExpired reports whether the secret's credential material is past its
	// known expiry. Unknown secrets are reported as expired.
	IsExpired(ctx context.Context, secretID, ownerID string) bool

	// ValidateIntegrity attempts to decrypt the payload and checks the
	// structural requirements of its credential kind.
	ValidateIntegrity(ctx context.Context, secretID, ownerID string) bool
}
