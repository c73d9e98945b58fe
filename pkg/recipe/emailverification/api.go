package emailverification

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
	"github.com/aussiebroadwan/tabsession/pkg/framework"
	"github.com/aussiebroadwan/tabsession/pkg/querier"
	"github.com/aussiebroadwan/tabsession/pkg/sdk"
	"github.com/aussiebroadwan/tabsession/pkg/session"
)

// withoutClaim drops validators of key so the APIs that fix the claim stay
// reachable while it fails.
func withoutClaim(key string) session.OverrideValidatorsFunc {
	return func(_ context.Context, global []*claims.Validator, _ session.SessionContainer) ([]*claims.Validator, error) {
		out := make([]*claims.Validator, 0, len(global))
		for _, v := range global {
			if v.Claim == nil || v.Claim.Key() != key {
				out = append(out, v)
			}
		}
		return out, nil
	}
}

func sendStatus(res framework.Response, status string) error {
	return res.SendJSONResponse(map[string]string{"status": status})
}

func makeAPIImplementation(r *Recipe) func(self *APIInterface) APIInterface {
	return func(self *APIInterface) APIInterface {
		getSession := func(req framework.Request, res framework.Response, required bool) (session.SessionContainer, error) {
			s := r.app.Session()
			return s.APIs().VerifySession(req, res, session.VerifySessionOptions{
				SessionRequired:               &required,
				OverrideGlobalClaimValidators: withoutClaim(ClaimKey),
			})
		}

		return APIInterface{
			GenerateEmailVerifyTokenPOST: func(req framework.Request, res framework.Response) error {
				ctx := req.Context()
				s, err := getSession(req, res, true)
				if err != nil {
					return err
				}

				if v, ok := r.claim.Value(s.GetAccessTokenPayload()); ok && v {
					return sendStatus(res, "EMAIL_ALREADY_VERIFIED_ERROR")
				}

				err = r.SendVerificationEmail(ctx, s.GetTenantID(), s.GetUserID())
				if errors.Is(err, ErrEmailAlreadyVerified) {
					if err := s.FetchAndSetClaim(ctx, r.claim); err != nil {
						return err
					}
					return sendStatus(res, "EMAIL_ALREADY_VERIFIED_ERROR")
				}
				if err != nil {
					return err
				}
				return sendStatus(res, "OK")
			},

			VerifyEmailPOST: func(req framework.Request, res framework.Response) error {
				ctx := req.Context()
				body, err := req.GetJSONBody()
				if err != nil {
					return sdk.NewBadInputError("invalid JSON body")
				}
				token, _ := body["token"].(string)
				if token == "" {
					return sdk.NewBadInputError("please provide the email verification token")
				}
				if method, _ := body["method"].(string); method != "token" {
					return sdk.NewBadInputError("method must be \"token\"")
				}
				tenantID, _ := body["tenantId"].(string)
				if tenantID == "" {
					tenantID = req.GetKeyValueFromQuery("tenantId")
				}
				if tenantID == "" {
					tenantID = querier.DefaultTenantID
				}

				userID, email, err := r.impl.VerifyEmailUsingToken(ctx, tenantID, token)
				if errors.Is(err, ErrInvalidToken) {
					return sendStatus(res, "EMAIL_VERIFICATION_INVALID_TOKEN_ERROR")
				}
				if err != nil {
					return err
				}

				// A signed in user gets the fresh value right away.
				s, err := getSession(req, res, false)
				if err != nil {
					return err
				}
				if s != nil && s.GetUserID() == userID {
					if err := s.FetchAndSetClaim(ctx, r.claim); err != nil {
						return err
					}
				}

				return res.SendJSONResponse(map[string]any{
					"status": "OK",
					"user":   map[string]string{"recipeUserId": userID, "email": email},
				})
			},

			IsEmailVerifiedGET: func(req framework.Request, res framework.Response) error {
				ctx := req.Context()
				s, err := getSession(req, res, true)
				if err != nil {
					return err
				}
				if err := s.FetchAndSetClaim(ctx, r.claim); err != nil {
					return err
				}
				v, _ := r.claim.Value(s.GetAccessTokenPayload())
				return res.SendJSONResponse(map[string]any{"status": "OK", "isVerified": v})
			},
		}
	}
}
