package brewauth

import (
	"context"
	"encoding/json"
	"time"
)

// TwoFactorState represents the lifecycle state of an account's second factor.
type TwoFactorState uint8

const (
	// TwoFactorDisabled is an exported constant or variable used by the authentication engine.
	TwoFactorDisabled TwoFactorState = iota
	// TwoFactorSetupPending is an exported constant or variable used by the authentication engine.
	TwoFactorSetupPending
	// TwoFactorEnabled is an exported constant or variable used by the authentication engine.
	TwoFactorEnabled
)

// SecondaryEmail is one entry of an account's alternate address set.
// Only verified entries participate in login lookup.
type SecondaryEmail struct {
	Address  string `json:"address"`
	Verified bool   `json:"verified"`
}

// Account is the full credential record persisted per user.
// It carries credential hashes, lockout state, second-factor material,
// the email set, and the single active refresh-token fingerprint.
type Account struct {
	ID              string
	Name            string
	PrimaryEmail    string
	SecondaryEmails []SecondaryEmail

	PasswordHash      string
	PasswordHistory   []string
	PasswordChangedAt time.Time

	FailedLoginAttempts int
	LockoutUntil        time.Time
	IsBlocked           bool
	IsAdmin             bool

	TwoFactorEnabled bool
	TwoFactorSecret  []byte
	BackupCodes      []BackupCodeRecord

	RefreshFingerprint string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TwoFactorStateOf reports the second-factor lifecycle state implied by
// the secret and flag pair.
func (a *Account) TwoFactorStateOf() TwoFactorState {
	switch {
	case a.TwoFactorEnabled:
		return TwoFactorEnabled
	case len(a.TwoFactorSecret) > 0:
		return TwoFactorSetupPending
	default:
		return TwoFactorDisabled
	}
}

// BackupCodeRecord stores the SHA-256 hash of a single backup code.
// The plaintext is never persisted.
type BackupCodeRecord struct {
	Hash [32]byte `json:"hash"`
}

// AccountStore is the primary interface that callers must implement to
// integrate brewauth with their account database. Lookup by email must
// match the primary address or any verified secondary address.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	EmailInUse(ctx context.Context, address string) (bool, error)
	Create(ctx context.Context, account *Account) error
	Update(ctx context.Context, account *Account) error
}

// PendingVerification is the single in-flight secondary-email
// verification allowed per account.
type PendingVerification struct {
	AccountID string
	Address   string
	TokenHash [32]byte
	ExpiresAt time.Time
}

// Mailer dispatches out-of-band messages carrying plaintext tokens.
// Delivery is an external collaborator; the engine only hands over the
// link material.
type Mailer interface {
	SendPasswordReset(ctx context.Context, address, token string) error
	SendEmailVerification(ctx context.Context, address, token string) error
}

// BotChecker verifies the registration-time bot-check assertion against
// an external verification service.
type BotChecker interface {
	Verify(ctx context.Context, assertion string) error
}

// RegisterInput is the input for [Engine.Register]. BotCheckToken is the
// client-side assertion forwarded to the configured [BotChecker].
type RegisterInput struct {
	Name          string
	Email         string
	Password      string
	BotCheckToken string
}

// PublicProfile contains the account fields safe to return to clients.
// Password material and second-factor secrets are never included.
type PublicProfile struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Email           string           `json:"email"`
	SecondaryEmails []SecondaryEmail `json:"secondaryEmails,omitempty"`
	IsAdmin         bool             `json:"isAdmin"`
	TwoFactor       bool             `json:"twoFactorEnabled"`
}

// Profile returns the public projection of an account.
func (a *Account) Profile() PublicProfile {
	emails := make([]SecondaryEmail, len(a.SecondaryEmails))
	copy(emails, a.SecondaryEmails)
	return PublicProfile{
		ID:              a.ID,
		Name:            a.Name,
		Email:           a.PrimaryEmail,
		SecondaryEmails: emails,
		IsAdmin:         a.IsAdmin,
		TwoFactor:       a.TwoFactorEnabled,
	}
}

// LoginResult is returned by [Engine.Login], [Engine.VerifyTwoFactorLogin]
// and [Engine.UseBackupCode]. It includes tokens when authentication
// succeeds, or the account id when a second factor is still required.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	Profile      PublicProfile

	TwoFactorRequired bool
	AccountID         string
}

// TokenPair holds a freshly minted access+refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TOTPSetup holds the base32-encoded shared secret and otpauth://
// provisioning URI returned by [Engine.BeginTwoFactorSetup].
type TOTPSetup struct {
	SecretBase32 string
	URI          string
}

// Identity tags the principal attached to a request: an authenticated
// account or an anonymous caller. Audit and request logging consume it
// uniformly instead of a sometimes-string, sometimes-record value.
type Identity struct {
	accountID string
}

// Anonymous is the identity of an unauthenticated caller.
var Anonymous = Identity{}

// Authenticated returns the identity of the given account.
func Authenticated(accountID string) Identity {
	return Identity{accountID: accountID}
}

// IsAnonymous reports whether the identity carries no account.
func (id Identity) IsAnonymous() bool { return id.accountID == "" }

// AccountID returns the tagged account id and whether one is present.
func (id Identity) AccountID() (string, bool) {
	return id.accountID, id.accountID != ""
}

// String renders the identity for log fields.
func (id Identity) String() string {
	if id.accountID == "" {
		return "anonymous"
	}
	return "account:" + id.accountID
}

// MarshalJSON renders the identity as its log form.
func (id Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}
