package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SecretStore = (*SecretRepo)(nil)

// keyID identifies the encryption scheme recorded alongside each payload so
// a future key rotation can tell old rows from new ones.
const keyID = "aes256gcm-v1"

// SecretRepo is the SQLite implementation of the SecretStore port.
// Credential payloads are encrypted with AES-256-GCM before write and
// decrypted after read; every payload carries its own random nonce.
type SecretRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
}

// NewSecretRepo creates a new SecretRepo. key must be 32 bytes for
// AES-256-GCM, or nil to disable secret storage (all operations will return
// ErrEncryptionKeyNotSet).
func NewSecretRepo(db *DB, key []byte) *SecretRepo {
	return &SecretRepo{db: db, key: key}
}

// Store encrypts and persists a credential payload, returning the new
// secret id.
func (r *SecretRepo) Store(ctx context.Context, ownerID, provider string, kind model.SecretKind, payload []byte, meta model.SecretMetadata) (string, error) {
	if !model.ValidSecretKind(kind) {
		return "", fmt.Errorf("store secret: unknown credential kind %q", kind)
	}

	encrypted, err := r.encrypt(payload)
	if err != nil {
		return "", err
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal secret metadata: %w", err)
	}

	id := model.NewSecretID()
	now := time.Now().UTC().Format(time.RFC3339)

	const query = `
		INSERT INTO secrets (id, owner_id, provider, kind, payload, key_id, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Writer.ExecContext(ctx, query, id, ownerID, provider, string(kind), encrypted, keyID, string(metaJSON), now, now)
	if err != nil {
		return "", fmt.Errorf("store secret: %w", err)
	}

	return id, nil
}

// Retrieve decrypts and returns the payload for the given secret. An owner
// mismatch behaves identically to an absent secret.
func (r *SecretRepo) Retrieve(ctx context.Context, secretID, ownerID string) ([]byte, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT payload FROM secrets WHERE id = ? AND owner_id = ?`
	var encrypted string
	err := r.db.Reader.QueryRowContext(ctx, query, secretID, ownerID).Scan(&encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, driven.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get secret %s: %w", secretID, err)
	}

	payload, err := r.decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret %s: %w", secretID, err)
	}
	return payload, nil
}

// Update replaces the payload and metadata of an existing secret without
// changing its id.
func (r *SecretRepo) Update(ctx context.Context, secretID, ownerID string, payload []byte, meta model.SecretMetadata) error {
	encrypted, err := r.encrypt(payload)
	if err != nil {
		return err
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal secret metadata: %w", err)
	}

	const query = `UPDATE secrets SET payload = ?, metadata = ?, updated_at = ? WHERE id = ? AND owner_id = ?`
	res, err := r.db.Writer.ExecContext(ctx, query, encrypted, string(metaJSON), time.Now().UTC().Format(time.RFC3339), secretID, ownerID)
	if err != nil {
		return fmt.Errorf("update secret %s: %w", secretID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update secret %s: %w", secretID, err)
	}
	if affected == 0 {
		return driven.ErrNotFound
	}

	return nil
}

// Delete removes the secret.
func (r *SecretRepo) Delete(ctx context.Context, secretID, ownerID string) error {
	const query = `DELETE FROM secrets WHERE id = ? AND owner_id = ?`
	res, err := r.db.Writer.ExecContext(ctx, query, secretID, ownerID)
	if err != nil {
		return fmt.Errorf("delete secret %s: %w", secretID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete secret %s: %w", secretID, err)
	}
	if affected == 0 {
		return driven.ErrNotFound
	}

	return nil
}

// Describe returns the metadata-only record for one secret.
func (r *SecretRepo) Describe(ctx context.Context, secretID, ownerID string) (*model.StoredSecret, error) {
	const query = `
		SELECT id, owner_id, provider, kind, metadata, created_at, updated_at
		FROM secrets WHERE id = ? AND owner_id = ?
	`

	var (
		secret               model.StoredSecret
		kind                 string
		metaJSON             string
		createdAt, updatedAt string
	)
	err := r.db.Reader.QueryRowContext(ctx, query, secretID, ownerID).
		Scan(&secret.ID, &secret.OwnerID, &secret.Provider, &kind, &metaJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, driven.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("describe secret %s: %w", secretID, err)
	}

	secret.Kind = model.SecretKind(kind)
	if err := json.Unmarshal([]byte(metaJSON), &secret.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal secret metadata: %w", err)
	}
	if secret.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if secret.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &secret, nil
}

// ListForOwner returns metadata-only records for the owner's secrets;
// encrypted payloads are never decrypted here.
func (r *SecretRepo) ListForOwner(ctx context.Context, ownerID string) ([]model.StoredSecret, error) {
	const query = `
		SELECT id, owner_id, provider, kind, metadata, created_at, updated_at
		FROM secrets WHERE owner_id = ? ORDER BY created_at DESC
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	defer rows.Close()

	var secrets []model.StoredSecret
	for rows.Next() {
		var (
			secret               model.StoredSecret
			kind                 string
			metaJSON             string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&secret.ID, &secret.OwnerID, &secret.Provider, &kind, &metaJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan secret: %w", err)
		}

		secret.Kind = model.SecretKind(kind)
		if err := json.Unmarshal([]byte(metaJSON), &secret.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal secret metadata: %w", err)
		}
		if secret.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if secret.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}

		secrets = append(secrets, secret)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate secrets: %w", err)
	}

	return secrets, nil
}

// IsExpired reports whether the secret's credential material has expired.
// Unknown or unreadable secrets are reported as expired; so is a payload
// whose embedded OAuth expiry has passed.
func (r *SecretRepo) IsExpired(ctx context.Context, secretID, ownerID string) bool {
	meta, kind, err := r.getMeta(ctx, secretID, ownerID)
	if err != nil {
		return true
	}

	now := time.Now()
	if !meta.ExpiresAt.IsZero() && now.After(meta.ExpiresAt) {
		return true
	}

	if kind == model.SecretKindOAuth {
		payload, err := r.Retrieve(ctx, secretID, ownerID)
		if err != nil {
			return true
		}
		var token model.TokenPayload
		if err := json.Unmarshal(payload, &token); err != nil {
			return true
		}
		return token.Expired(now)
	}

	return false
}

// ValidateIntegrity attempts to decrypt the payload and checks the
// structural requirements of its credential kind.
func (r *SecretRepo) ValidateIntegrity(ctx context.Context, secretID, ownerID string) bool {
	_, kind, err := r.getMeta(ctx, secretID, ownerID)
	if err != nil {
		return false
	}

	payload, err := r.Retrieve(ctx, secretID, ownerID)
	if err != nil {
		return false
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return false
	}

	switch kind {
	case model.SecretKindOAuth:
		return hasNonEmpty(fields, "access_token")
	case model.SecretKindAPIKey:
		return hasNonEmpty(fields, "api_key")
	case model.SecretKindBasicAuth:
		return hasNonEmpty(fields, "username") && hasNonEmpty(fields, "password")
	case model.SecretKindCertificate:
		return hasNonEmpty(fields, "certificate")
	}
	return false
}

func hasNonEmpty(fields map[string]any, key string) bool {
	v, ok := fields[key].(string)
	return ok && v != ""
}

func (r *SecretRepo) getMeta(ctx context.Context, secretID, ownerID string) (model.SecretMetadata, model.SecretKind, error) {
	const query = `SELECT kind, metadata FROM secrets WHERE id = ? AND owner_id = ?`

	var kind, metaJSON string
	err := r.db.Reader.QueryRowContext(ctx, query, secretID, ownerID).Scan(&kind, &metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SecretMetadata{}, "", driven.ErrNotFound
	}
	if err != nil {
		return model.SecretMetadata{}, "", fmt.Errorf("get secret meta %s: %w", secretID, err)
	}

	var meta model.SecretMetadata
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return model.SecretMetadata{}, "", fmt.Errorf("unmarshal secret metadata: %w", err)
	}
	return meta, model.SecretKind(kind), nil
}

// encrypt encrypts the payload using AES-256-GCM and returns a
// base64-encoded string containing the nonce (12 bytes) prepended to the
// ciphertext.
func (r *SecretRepo) encrypt(payload []byte) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, payload, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *SecretRepo) decrypt(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm.Open: %w", err)
	}

	return plaintext, nil
}
