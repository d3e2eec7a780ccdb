package brewauth

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Config defines a public type used by brewauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT               JWTConfig
	Password          PasswordConfig
	Policy            PolicyConfig
	Lockout           LockoutConfig
	TOTP              TOTPConfig
	PasswordReset     PasswordResetConfig
	EmailVerification EmailVerificationConfig
	Audit             AuditConfig
	Security          SecurityConfig
	Redis             RedisConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by brewauth APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by brewauth APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// PolicyConfig defines a public type used by brewauth APIs.
//
// PolicyConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PolicyConfig struct {
	MinLength           int
	MaxLength           int
	ExpiryWindow        time.Duration // password considered expired this long after PasswordChangedAt
	HistoryRetained     int           // hashes kept on the account
	ResetReuseWindow    int           // history entries compared on reset
	ProfileReuseWindow  int           // history entries compared on profile change
	DisableExpiryChecks bool
}

// LockoutConfig defines a public type used by brewauth APIs.
//
// LockoutConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

// TOTPConfig defines a public type used by brewauth APIs.
//
// TOTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TOTPConfig struct {
	Issuer               string
	Digits               int
	Period               int
	Algorithm            string
	Skew                 int
	LoginChallengeTTL    time.Duration
	LoginChallengePrefix string
	BackupCodeCount      int
	BackupCodeLength     int
}

// PasswordResetConfig defines a public type used by brewauth APIs.
//
// PasswordResetConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordResetConfig struct {
	TokenTTL    time.Duration
	RedisPrefix string
}

// EmailVerificationConfig defines a public type used by brewauth APIs.
//
// EmailVerificationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EmailVerificationConfig struct {
	TokenTTL    time.Duration
	RedisPrefix string
}

// AuditConfig defines a public type used by brewauth APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig defines a public type used by brewauth APIs.
//
// SecurityConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SecurityConfig struct {
	ProductionMode       bool
	RequireSecureCookies bool
	SameSitePolicy       http.SameSite
	CSRFProtection       bool
}

// RedisConfig defines a public type used by brewauth APIs.
//
// RedisConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RedisConfig struct {
	KeyPrefix string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Callers amend it
// (signing keys at minimum) and pass it to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "purebrew",
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: PolicyConfig{
			MinLength:          8,
			MaxLength:          256,
			ExpiryWindow:       90 * 24 * time.Hour,
			HistoryRetained:    5,
			ResetReuseWindow:   5,
			ProfileReuseWindow: 2,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    15 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:               "PureBrew",
			Digits:               6,
			Period:               30,
			Algorithm:            "SHA1",
			Skew:                 1,
			LoginChallengeTTL:    3 * time.Minute,
			LoginChallengePrefix: "mfa",
			BackupCodeCount:      10,
			BackupCodeLength:     10,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:    time.Hour,
			RedisPrefix: "pwreset",
		},
		EmailVerification: EmailVerificationConfig{
			TokenTTL:    time.Hour,
			RedisPrefix: "emailverify",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Security: SecurityConfig{
			ProductionMode:       false,
			RequireSecureCookies: true,
			SameSitePolicy:       http.SameSiteLaxMode,
			CSRFProtection:       true,
		},
		Redis: RedisConfig{
			KeyPrefix: "ba",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must exceed AccessTTL")
	}

	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}

	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Policy
	if c.Policy.MinLength < 8 {
		return errors.New("Policy MinLength must be >= 8")
	}
	if c.Policy.MaxLength > 0 && c.Policy.MaxLength < c.Policy.MinLength {
		return errors.New("Policy MaxLength must be >= MinLength")
	}
	if !c.Policy.DisableExpiryChecks && c.Policy.ExpiryWindow <= 0 {
		return errors.New("Policy ExpiryWindow must be > 0 unless expiry checks are disabled")
	}
	if c.Policy.HistoryRetained <= 0 {
		return errors.New("Policy HistoryRetained must be > 0")
	}
	if c.Policy.ResetReuseWindow <= 0 || c.Policy.ResetReuseWindow > c.Policy.HistoryRetained {
		return errors.New("Policy ResetReuseWindow must be in [1, HistoryRetained]")
	}
	if c.Policy.ProfileReuseWindow <= 0 || c.Policy.ProfileReuseWindow > c.Policy.HistoryRetained {
		return errors.New("Policy ProfileReuseWindow must be in [1, HistoryRetained]")
	}

	// Lockout
	if c.Lockout.MaxAttempts <= 0 {
		return errors.New("Lockout MaxAttempts must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// TOTP
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP Skew must be >= 0")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
		// valid (empty treated as SHA1)
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256, or SHA512")
	}
	if c.TOTP.LoginChallengeTTL <= 0 {
		return errors.New("TOTP LoginChallengeTTL must be > 0")
	}
	if c.TOTP.BackupCodeCount <= 0 {
		return errors.New("TOTP BackupCodeCount must be > 0")
	}
	if c.TOTP.BackupCodeLength <= 0 {
		return errors.New("TOTP BackupCodeLength must be > 0")
	}

	// Password Reset
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}

	// Email Verification
	if c.EmailVerification.TokenTTL <= 0 {
		return errors.New("EmailVerification TokenTTL must be > 0")
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	if c.Security.ProductionMode {
		if c.JWT.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires JWT AccessTTL <= 15m")
		}
		if c.JWT.RefreshTTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires JWT RefreshTTL <= 30d")
		}
		if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
			return errors.New("ProductionMode requires hs256 key length >= 256 bits")
		}
		if c.Password.Memory < 64*1024 {
			return errors.New("ProductionMode requires Password Memory >= 65536 KB")
		}
		if c.Password.Time < 2 {
			return errors.New("ProductionMode requires Password Time >= 2")
		}
		if c.Password.KeyLength < 32 {
			return errors.New("ProductionMode requires Password KeyLength >= 32")
		}
		if !c.Security.RequireSecureCookies {
			return errors.New("ProductionMode requires secure cookies")
		}
		if !c.Security.CSRFProtection {
			return errors.New("ProductionMode requires CSRF protection")
		}
		if c.TOTP.Skew > 2 {
			return errors.New("ProductionMode requires TOTP Skew <= 2")
		}
		if c.TOTP.BackupCodeCount < 8 {
			return errors.New("ProductionMode requires TOTP BackupCodeCount >= 8")
		}
		if c.TOTP.BackupCodeLength < 8 {
			return errors.New("ProductionMode requires TOTP BackupCodeLength >= 8")
		}
		if c.PasswordReset.TokenTTL > time.Hour {
			return errors.New("ProductionMode requires PasswordReset TokenTTL <= 1h")
		}
		if c.EmailVerification.TokenTTL > time.Hour {
			return errors.New("ProductionMode requires EmailVerification TokenTTL <= 1h")
		}
	}

	return nil
}
