package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/tabsession/internal/core/domain"
	"github.com/aussiebroadwan/tabsession/internal/core/store"
	"github.com/aussiebroadwan/tabsession/pkg/cryptox"
	"github.com/aussiebroadwan/tabsession/pkg/idx"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

const (
	DefaultTOTPPeriod = 30
	DefaultTOTPSkew   = 1

	// MaxTOTPAttempts failed codes within TOTPLockout lock the user out.
	MaxTOTPAttempts = 5
	TOTPLockout     = 15 * time.Minute
)

var (
	ErrDeviceAlreadyExists = errors.New("totp device already exists")
	ErrUnknownDevice       = errors.New("unknown totp device")
	ErrUnknownTOTPUser     = errors.New("user has no verified totp device")
)

var totpSecretAAD = []byte("tabsession/totp-secret")

// InvalidTOTPError is a wrong or replayed code.
type InvalidTOTPError struct {
	FailedAttempts int
	MaxAttempts    int
}

func (e *InvalidTOTPError) Error() string {
	return fmt.Sprintf("invalid totp code (%d/%d)", e.FailedAttempts, e.MaxAttempts)
}

// LimitReachedError means too many failed codes; retry after RetryAfter.
type LimitReachedError struct {
	RetryAfter time.Duration
}

func (e *LimitReachedError) Error() string {
	return fmt.Sprintf("too many failed totp attempts, retry in %s", e.RetryAfter)
}

// TOTPService manages authenticator devices and checks codes against them.
type TOTPService struct {
	Store  store.Store
	Sealer *cryptox.Sealer
	Issuer string
	Now    func() time.Time
}

func (s *TOTPService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreatedDevice is returned once at registration; the secret is never shown
// again.
type CreatedDevice struct {
	Device domain.TOTPDevice
	Secret string
	URL    string
}

// CreateDevice registers an unverified device. An empty name gets
// "TOTP Device N".
func (s *TOTPService) CreateDevice(ctx context.Context, userID, name string, period, skew int) (*CreatedDevice, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrBadRequest)
	}
	if period <= 0 {
		period = DefaultTOTPPeriod
	}
	if skew < 0 {
		skew = DefaultTOTPSkew
	}

	name = strings.TrimSpace(name)
	if name == "" {
		existing, err := s.Store.TOTP().ListDevices(ctx, userID)
		if err != nil {
			return nil, err
		}
		name = fmt.Sprintf("TOTP Device %d", len(existing)+1)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: userID,
		Period:      uint(period),
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	sealed, err := s.Sealer.Seal([]byte(key.Secret()), totpSecretAAD)
	if err != nil {
		return nil, fmt.Errorf("seal totp secret: %w", err)
	}

	device := domain.TOTPDevice{
		UserID:       userID,
		Name:         name,
		SecretSealed: sealed,
		Period:       period,
		Skew:         skew,
		CreatedAt:    s.now(),
	}
	if err := s.Store.TOTP().CreateDevice(ctx, device); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrDeviceAlreadyExists
		}
		return nil, err
	}

	return &CreatedDevice{Device: device, Secret: key.Secret(), URL: key.URL()}, nil
}

// VerifyDevice checks a code against one device and marks it verified.
func (s *TOTPService) VerifyDevice(ctx context.Context, tenantID, userID, name, code string) (wasAlreadyVerified bool, err error) {
	device, err := s.Store.TOTP().GetDevice(ctx, userID, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrUnknownDevice
		}
		return false, err
	}
	if device.Verified {
		return true, nil
	}

	if err := s.checkCode(ctx, tenantID, userID, code, []domain.TOTPDevice{device}); err != nil {
		return false, err
	}
	return false, s.Store.TOTP().MarkDeviceVerified(ctx, userID, name)
}

// VerifyCode checks a code against every verified device of the user.
func (s *TOTPService) VerifyCode(ctx context.Context, tenantID, userID, code string) error {
	devices, err := s.Store.TOTP().ListDevices(ctx, userID)
	if err != nil {
		return err
	}
	verified := devices[:0]
	for _, d := range devices {
		if d.Verified {
			verified = append(verified, d)
		}
	}
	if len(verified) == 0 {
		return ErrUnknownTOTPUser
	}
	return s.checkCode(ctx, tenantID, userID, code, verified)
}

func (s *TOTPService) ListDevices(ctx context.Context, userID string) ([]domain.TOTPDevice, error) {
	return s.Store.TOTP().ListDevices(ctx, userID)
}

// RemoveDevice reports whether the device existed.
func (s *TOTPService) RemoveDevice(ctx context.Context, userID, name string) (bool, error) {
	err := s.Store.TOTP().DeleteDevice(ctx, userID, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *TOTPService) RenameDevice(ctx context.Context, userID, oldName, newName string) error {
	err := s.Store.TOTP().RenameDevice(ctx, userID, oldName, newName)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrUnknownDevice
	case errors.Is(err, store.ErrAlreadyExists):
		return ErrDeviceAlreadyExists
	default:
		return err
	}
}

// checkCode enforces the lockout, rejects replays of an accepted code and
// records the attempt.
func (s *TOTPService) checkCode(ctx context.Context, tenantID, userID, code string, devices []domain.TOTPDevice) error {
	now := s.now()
	l := slogx.FromContext(ctx)

	attempts, err := s.Store.TOTP().ListAttempts(ctx, tenantID, userID, now)
	if err != nil {
		return err
	}

	// 1. Count consecutive failures, newest first
	failed := 0
	for _, a := range attempts {
		if a.Valid {
			break
		}
		failed++
	}
	if failed >= MaxTOTPAttempts {
		retry := attempts[MaxTOTPAttempts-1].ExpiresAt.Sub(now)
		return &LimitReachedError{RetryAfter: retry}
	}

	// 2. Reject a code that was already accepted
	valid := true
	for _, a := range attempts {
		if a.Valid && a.Code == code {
			valid = false
			break
		}
	}

	// 3. Try every device
	if valid {
		valid = false
		for _, d := range devices {
			ok, err := s.validate(d, code, now)
			if err != nil {
				return err
			}
			if ok {
				valid = true
				break
			}
		}
	}

	err = s.Store.TOTP().RecordAttempt(ctx, domain.TOTPAttempt{
		ID:        idx.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
		Code:      code,
		Valid:     valid,
		ExpiresAt: now.Add(TOTPLockout),
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("record totp attempt: %w", err)
	}

	if !valid {
		l.Info("totp code rejected", slog.String("user_id", userID), slog.Int("failed_attempts", failed+1))
		return &InvalidTOTPError{FailedAttempts: failed + 1, MaxAttempts: MaxTOTPAttempts}
	}
	return nil
}

func (s *TOTPService) validate(d domain.TOTPDevice, code string, now time.Time) (bool, error) {
	secret, err := s.Sealer.Open(d.SecretSealed, totpSecretAAD)
	if err != nil {
		return false, fmt.Errorf("unseal totp secret: %w", err)
	}
	ok, err := totp.ValidateCustom(code, string(secret), now, totp.ValidateOpts{
		Period:    uint(d.Period),
		Skew:      uint(d.Skew),
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// Malformed input is just a wrong code.
		return false, nil
	}
	return ok, nil
}
