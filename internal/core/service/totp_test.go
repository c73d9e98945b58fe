package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/cryptox"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func newTOTPService(t *testing.T) (*TOTPService, *testClock) {
	t.Helper()
	clock := newTestClock()
	return &TOTPService{
		Store:  newTestStore(t),
		Sealer: cryptox.NewRandomSealer(),
		Issuer: "tabsession",
		Now:    clock.Now,
	}, clock
}

func TestTOTPService_Devices(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTOTPService(t)

	created, err := svc.CreateDevice(ctx, "user-1", "", 0, -1)
	require.NoError(t, err)
	require.Equal(t, "TOTP Device 1", created.Device.Name)
	require.Equal(t, DefaultTOTPPeriod, created.Device.Period)
	require.Equal(t, DefaultTOTPSkew, created.Device.Skew)
	require.Contains(t, created.URL, "otpauth://totp/")
	require.NotContains(t, string(created.Device.SecretSealed), created.Secret)

	second, err := svc.CreateDevice(ctx, "user-1", "  ", 60, 0)
	require.NoError(t, err)
	require.Equal(t, "TOTP Device 2", second.Device.Name)

	_, err = svc.CreateDevice(ctx, "user-1", "TOTP Device 1", 30, 1)
	require.ErrorIs(t, err, ErrDeviceAlreadyExists)

	_, err = svc.CreateDevice(ctx, "", "phone", 30, 1)
	require.ErrorIs(t, err, ErrBadRequest)

	require.ErrorIs(t, svc.RenameDevice(ctx, "user-1", "TOTP Device 1", "TOTP Device 2"), ErrDeviceAlreadyExists)
	require.ErrorIs(t, svc.RenameDevice(ctx, "user-1", "missing", "x"), ErrUnknownDevice)
	require.NoError(t, svc.RenameDevice(ctx, "user-1", "TOTP Device 1", "phone"))

	devices, err := svc.ListDevices(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, devices, 2)

	existed, err := svc.RemoveDevice(ctx, "user-1", "phone")
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = svc.RemoveDevice(ctx, "user-1", "phone")
	require.NoError(t, err)
	require.False(t, existed)
}

func TestTOTPService_VerifyDeviceAndCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, clock := newTOTPService(t)

	created, err := svc.CreateDevice(ctx, "user-1", "phone", 30, 1)
	require.NoError(t, err)

	err = svc.VerifyCode(ctx, "public", "user-1", "000000")
	require.ErrorIs(t, err, ErrUnknownTOTPUser)

	_, err = svc.VerifyDevice(ctx, "public", "user-1", "tablet", "000000")
	require.ErrorIs(t, err, ErrUnknownDevice)

	code, err := totp.GenerateCode(created.Secret, clock.Now())
	require.NoError(t, err)

	already, err := svc.VerifyDevice(ctx, "public", "user-1", "phone", code)
	require.NoError(t, err)
	require.False(t, already)

	already, err = svc.VerifyDevice(ctx, "public", "user-1", "phone", "garbage")
	require.NoError(t, err)
	require.True(t, already)

	t.Run("accepted codes cannot be replayed", func(t *testing.T) {
		clock.Advance(time.Second)
		err := svc.VerifyCode(ctx, "public", "user-1", code)
		var invalid *InvalidTOTPError
		require.ErrorAs(t, err, &invalid)
		require.Equal(t, 1, invalid.FailedAttempts)
		require.Equal(t, MaxTOTPAttempts, invalid.MaxAttempts)
	})

	t.Run("next code is accepted within skew", func(t *testing.T) {
		clock.Advance(30 * time.Second)
		next, err := totp.GenerateCode(created.Secret, clock.Now())
		require.NoError(t, err)
		require.NoError(t, svc.VerifyCode(ctx, "public", "user-1", next))
	})
}

func TestTOTPService_Lockout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, clock := newTOTPService(t)

	created, err := svc.CreateDevice(ctx, "user-1", "phone", 30, 1)
	require.NoError(t, err)
	code, err := totp.GenerateCode(created.Secret, clock.Now())
	require.NoError(t, err)
	_, err = svc.VerifyDevice(ctx, "public", "user-1", "phone", code)
	require.NoError(t, err)

	for i := 1; i <= MaxTOTPAttempts; i++ {
		clock.Advance(time.Second)
		err := svc.VerifyCode(ctx, "public", "user-1", "000000")
		var invalid *InvalidTOTPError
		require.ErrorAs(t, err, &invalid)
		require.Equal(t, i, invalid.FailedAttempts)
	}

	clock.Advance(time.Second)
	valid, err := totp.GenerateCode(created.Secret, clock.Now())
	require.NoError(t, err)

	err = svc.VerifyCode(ctx, "public", "user-1", valid)
	var limit *LimitReachedError
	require.ErrorAs(t, err, &limit)
	require.Equal(t, TOTPLockout-5*time.Second, limit.RetryAfter)

	// Lockout is per tenant.
	require.NoError(t, svc.VerifyCode(ctx, "acme", "user-1", valid))

	clock.Advance(limit.RetryAfter)
	valid, err = totp.GenerateCode(created.Secret, clock.Now())
	require.NoError(t, err)
	require.NoError(t, svc.VerifyCode(ctx, "public", "user-1", valid))
}
