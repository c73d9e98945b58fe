package session

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/aussiebroadwan/tabsession/pkg/querier"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

// Core response statuses.
const (
	statusOK                 = "OK"
	statusUnauthorised       = "UNAUTHORISED"
	statusTryRefreshToken    = "TRY_REFRESH_TOKEN"
	statusTokenTheftDetected = "TOKEN_THEFT_DETECTED"
)

type coreSession struct {
	Handle        string         `json:"handle"`
	UserID        string         `json:"userId"`
	RecipeUserID  string         `json:"recipeUserId"`
	TenantID      string         `json:"tenantId"`
	UserDataInJWT claims.Payload `json:"userDataInJWT"`
}

type coreSessionResponse struct {
	Status        string      `json:"status"`
	Message       string      `json:"message,omitempty"`
	Session       coreSession `json:"session"`
	AccessToken   *TokenInfo  `json:"accessToken,omitempty"`
	RefreshToken  *TokenInfo  `json:"refreshToken,omitempty"`
	AntiCsrfToken string      `json:"antiCsrfToken,omitempty"`
}

type coreStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type revokeResponse struct {
	Status                string   `json:"status"`
	SessionHandlesRevoked []string `json:"sessionHandlesRevoked"`
}

func unexpectedStatus(op, status string) error {
	return fmt.Errorf("session: %s: unexpected core status %q", op, status)
}

// makeRecipeImplementation is the default RecipeInterface. Operations that
// build on others call them through self so overrides are honoured.
func makeRecipeImplementation(q querier.Querier, cfg *normalisedConfig, keys jwtx.KeyLookup) func(self *RecipeInterface) RecipeInterface {
	return func(self *RecipeInterface) RecipeInterface {
		enableAntiCsrf := func(disabled bool) bool {
			return !disabled && cfg.antiCsrf == AntiCsrfViaToken
		}

		fromCore := func(ctx context.Context, resp *coreSessionResponse) (SessionContainer, error) {
			if resp.AccessToken == nil {
				return nil, fmt.Errorf("session: core returned no access token")
			}
			payload, err := jwtx.ParseAndVerify(ctx, resp.AccessToken.Token, keys)
			if err != nil {
				return nil, fmt.Errorf("session: core issued an unverifiable access token: %w", err)
			}
			s := newContainer(self, cfg, keys, resp.AccessToken.Token, payload)
			s.refreshToken = resp.RefreshToken
			s.antiCsrfToken = resp.AntiCsrfToken
			s.tokenUpdated = true
			return s, nil
		}

		return RecipeInterface{
			CreateNewSession: func(ctx context.Context, in CreateSessionInput) (SessionContainer, error) {
				recipeUserID := in.RecipeUserID
				if recipeUserID == "" {
					recipeUserID = in.UserID
				}
				payload := in.AccessTokenPayload
				if payload == nil {
					payload = claims.Payload{}
				}
				data := in.SessionDataInDatabase
				if data == nil {
					data = map[string]any{}
				}

				var resp coreSessionResponse
				err := q.SendPostRequest(ctx, querier.TenantPath(in.TenantID, "/recipe/session"), map[string]any{
					"userId":             in.UserID,
					"recipeUserId":       recipeUserID,
					"userDataInJWT":      payload,
					"userDataInDatabase": data,
					"enableAntiCsrf":     enableAntiCsrf(in.DisableAntiCsrf),
				}, &resp)
				if err != nil {
					return nil, err
				}
				if resp.Status != statusOK {
					return nil, unexpectedStatus("create session", resp.Status)
				}
				return fromCore(ctx, &resp)
			},

			GetSession: func(ctx context.Context, in GetSessionInput) (SessionContainer, error) {
				payload, err := jwtx.ParseAndVerify(ctx, in.AccessToken, keys)
				if err != nil {
					return nil, tokenError(err)
				}
				if err := payload.CheckExpiry(cfg.now()); err != nil {
					return nil, tokenError(err)
				}

				if in.AntiCsrfCheck {
					if payload.AntiCsrfToken == "" {
						return nil, tryRefresh("access token carries no anti-csrf token")
					}
					if in.AntiCsrfToken != payload.AntiCsrfToken {
						return nil, tryRefresh("anti-csrf check failed")
					}
				}

				// A parent hash means the refresh that minted this token has
				// not been confirmed yet. Using the token confirms it.
				if payload.ParentRefreshTokenHash1 == "" && !in.CheckDatabase {
					return newContainer(self, cfg, keys, in.AccessToken, payload), nil
				}

				var resp coreSessionResponse
				err = q.SendPostRequest(ctx, "/recipe/session/verify", map[string]any{
					"accessToken":     in.AccessToken,
					"doAntiCsrfCheck": false,
					"enableAntiCsrf":  cfg.antiCsrf == AntiCsrfViaToken,
					"checkDatabase":   in.CheckDatabase,
				}, &resp)
				if err != nil {
					return nil, err
				}
				switch resp.Status {
				case statusOK:
				case statusUnauthorised:
					return nil, unauthorised(true, "%s", resp.Message)
				case statusTryRefreshToken:
					return nil, tryRefresh("%s", resp.Message)
				default:
					return nil, unexpectedStatus("verify session", resp.Status)
				}

				if resp.AccessToken == nil {
					return newContainer(self, cfg, keys, in.AccessToken, payload), nil
				}
				return fromCore(ctx, &resp)
			},

			RefreshSession: func(ctx context.Context, in RefreshSessionInput) (SessionContainer, error) {
				body := map[string]any{
					"refreshToken":   in.RefreshToken,
					"enableAntiCsrf": enableAntiCsrf(in.DisableAntiCsrf),
				}
				if in.AntiCsrfToken != "" {
					body["antiCsrfToken"] = in.AntiCsrfToken
				}

				var resp coreSessionResponse
				if err := q.SendPostRequest(ctx, "/recipe/session/refresh", body, &resp); err != nil {
					return nil, err
				}

				switch resp.Status {
				case statusOK:
					return fromCore(ctx, &resp)
				case statusUnauthorised:
					return nil, unauthorised(true, "%s", resp.Message)
				case statusTokenTheftDetected:
					handle := resp.Session.Handle
					slogx.FromContext(ctx).Warn("refresh token reuse detected, revoking session",
						"session_handle", handle, "user_id", resp.Session.UserID)
					if _, err := self.RevokeSession(ctx, handle); err != nil {
						slogx.FromContext(ctx).Error("revoke after token theft", "session_handle", handle, "err", err)
					}
					return nil, &Error{
						Type:        TokenTheftDetected,
						Message:     "token theft detected",
						ClearTokens: true,
						Theft: &TheftPayload{
							SessionHandle: handle,
							UserID:        resp.Session.UserID,
							RecipeUserID:  resp.Session.RecipeUserID,
						},
					}
				default:
					return nil, unexpectedStatus("refresh session", resp.Status)
				}
			},

			RevokeSession: func(ctx context.Context, sessionHandle string) (bool, error) {
				revoked, err := self.RevokeMultipleSessions(ctx, []string{sessionHandle})
				if err != nil {
					return false, err
				}
				return len(revoked) == 1, nil
			},

			RevokeAllSessionsForUser: func(ctx context.Context, userID, tenantID string, acrossAllTenants bool) ([]string, error) {
				var resp revokeResponse
				err := q.SendPostRequest(ctx, querier.TenantPath(tenantID, "/recipe/session/remove"), map[string]any{
					"userId":                 userID,
					"revokeAcrossAllTenants": acrossAllTenants,
				}, &resp)
				if err != nil {
					return nil, err
				}
				return resp.SessionHandlesRevoked, nil
			},

			RevokeMultipleSessions: func(ctx context.Context, sessionHandles []string) ([]string, error) {
				if len(sessionHandles) == 0 {
					return nil, nil
				}
				var resp revokeResponse
				err := q.SendPostRequest(ctx, "/recipe/session/remove", map[string]any{
					"sessionHandles": sessionHandles,
				}, &resp)
				if err != nil {
					return nil, err
				}
				return resp.SessionHandlesRevoked, nil
			},

			GetAllSessionHandlesForUser: func(ctx context.Context, userID, tenantID string, acrossAllTenants bool) ([]string, error) {
				var resp struct {
					Status         string   `json:"status"`
					SessionHandles []string `json:"sessionHandles"`
				}
				err := q.SendGetRequest(ctx, querier.TenantPath(tenantID, "/recipe/session/user"), url.Values{
					"userId":                {userID},
					"fetchAcrossAllTenants": {strconv.FormatBool(acrossAllTenants)},
				}, &resp)
				if err != nil {
					return nil, err
				}
				return resp.SessionHandles, nil
			},

			GetSessionInformation: func(ctx context.Context, sessionHandle string) (*SessionInformation, error) {
				var resp struct {
					coreStatus
					SessionInformation
				}
				err := q.SendGetRequest(ctx, "/recipe/session", url.Values{"sessionHandle": {sessionHandle}}, &resp)
				if err != nil {
					return nil, err
				}
				switch resp.Status {
				case statusOK:
				case statusUnauthorised:
					return nil, nil
				default:
					return nil, unexpectedStatus("get session information", resp.Status)
				}
				info := resp.SessionInformation
				if info.CustomClaimsInAccessTokenPayload == nil {
					info.CustomClaimsInAccessTokenPayload = claims.Payload{}
				}
				return &info, nil
			},

			UpdateSessionDataInDatabase: func(ctx context.Context, sessionHandle string, data map[string]any) (bool, error) {
				var resp coreStatus
				err := q.SendPutRequest(ctx, "/recipe/session/data", map[string]any{
					"sessionHandle":      sessionHandle,
					"userDataInDatabase": data,
				}, &resp)
				if err != nil {
					return false, err
				}
				return resp.Status == statusOK, nil
			},

			MergeIntoAccessTokenPayload: func(ctx context.Context, sessionHandle string, update claims.Payload) (bool, error) {
				info, err := self.GetSessionInformation(ctx, sessionHandle)
				if err != nil || info == nil {
					return false, err
				}

				var resp coreStatus
				err = q.SendPutRequest(ctx, "/recipe/jwt/data", map[string]any{
					"sessionHandle": sessionHandle,
					"userDataInJWT": mergePayload(info.CustomClaimsInAccessTokenPayload, update),
				}, &resp)
				if err != nil {
					return false, err
				}
				return resp.Status == statusOK, nil
			},

			RegenerateAccessToken: func(ctx context.Context, accessToken string, newPayload claims.Payload) (*RegenerateResult, error) {
				if newPayload == nil {
					newPayload = claims.Payload{}
				}
				var resp coreSessionResponse
				err := q.SendPostRequest(ctx, "/recipe/session/regenerate", map[string]any{
					"accessToken":   accessToken,
					"userDataInJWT": newPayload,
				}, &resp)
				if err != nil {
					return nil, err
				}
				switch resp.Status {
				case statusOK:
				case statusUnauthorised:
					return nil, nil
				default:
					return nil, unexpectedStatus("regenerate access token", resp.Status)
				}
				return &RegenerateResult{
					Session: SessionInformation{
						SessionHandle:                    resp.Session.Handle,
						UserID:                           resp.Session.UserID,
						RecipeUserID:                     resp.Session.RecipeUserID,
						TenantID:                         resp.Session.TenantID,
						CustomClaimsInAccessTokenPayload: resp.Session.UserDataInJWT,
					},
					AccessToken: resp.AccessToken,
				}, nil
			},

			FetchAndSetClaim: func(ctx context.Context, sessionHandle string, claim claims.SessionClaim) (bool, error) {
				info, err := self.GetSessionInformation(ctx, sessionHandle)
				if err != nil || info == nil {
					return false, err
				}
				v, ok, err := claim.FetchValue(ctx, info.UserID, info.RecipeUserID, info.TenantID, info.CustomClaimsInAccessTokenPayload)
				if err != nil {
					return false, err
				}
				if !ok {
					return true, nil
				}
				return self.MergeIntoAccessTokenPayload(ctx, sessionHandle, claim.AddToPayload(nil, v))
			},

			SetClaimValue: func(ctx context.Context, sessionHandle string, claim claims.SessionClaim, value any) (bool, error) {
				return self.MergeIntoAccessTokenPayload(ctx, sessionHandle, claim.AddToPayload(nil, value))
			},

			GetClaimValue: func(ctx context.Context, sessionHandle string, claim claims.SessionClaim) (any, bool, error) {
				info, err := self.GetSessionInformation(ctx, sessionHandle)
				if err != nil {
					return nil, false, err
				}
				if info == nil {
					return nil, false, ErrSessionNotFound
				}
				v, ok := claim.GetValueFromPayload(info.CustomClaimsInAccessTokenPayload)
				return v, ok, nil
			},

			RemoveClaim: func(ctx context.Context, sessionHandle string, claim claims.SessionClaim) (bool, error) {
				return self.MergeIntoAccessTokenPayload(ctx, sessionHandle, claim.RemoveFromPayloadByMerge(nil))
			},

			GetGlobalClaimValidators: func(_ context.Context, in GlobalValidatorsInput) ([]*claims.Validator, error) {
				return in.ClaimValidatorsAddedByOtherRecipes, nil
			},

			ValidateClaims: validateClaims,
		}
	}
}

// validateClaims runs the refetch-then-validate protocol for each validator
// in order: refetch when ShouldRefetch says so, merge the fresh value at the
// core, then validate against the updated payload.
func validateClaims(ctx context.Context, in ValidateClaimsInput) (*ValidateClaimsResult, error) {
	payload := mergePayload(in.AccessTokenPayload, nil)
	res := &ValidateClaimsResult{}

	for _, v := range in.Validators {
		if v == nil {
			continue
		}
		if v.Claim != nil && v.ShouldRefetch != nil && v.ShouldRefetch(payload) {
			value, ok, err := v.Claim.FetchValue(ctx, in.UserID, in.RecipeUserID, in.TenantID, payload)
			if err != nil {
				return nil, fmt.Errorf("session: fetch claim %q: %w", v.Claim.Key(), err)
			}
			if ok {
				update := v.Claim.AddToPayload(nil, value)
				payload = mergePayload(payload, update)
				res.AccessTokenPayloadUpdate = mergePayload(res.AccessTokenPayloadUpdate, update)
				if in.Merge != nil {
					if err := in.Merge(ctx, update); err != nil {
						return nil, err
					}
				}
			}
		}

		if r := v.Validate(payload); !r.IsValid {
			slogx.FromContext(ctx).Debug("claim validation failed", "validator", v.ID, "reason", r.Reason)
			res.InvalidClaims = append(res.InvalidClaims, ClaimValidationError{ID: v.ID, Reason: r.Reason})
		}
	}
	return res, nil
}
