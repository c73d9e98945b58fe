package emailverification

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aussiebroadwan/tabsession/pkg/querier"
)

type coreStatus struct {
	Status string `json:"status"`
}

func makeRecipeImplementation(q querier.Querier) func(self *RecipeInterface) RecipeInterface {
	return func(self *RecipeInterface) RecipeInterface {
		return RecipeInterface{
			CreateEmailVerificationToken: func(ctx context.Context, tenantID, userID, email string) (string, error) {
				var resp struct {
					coreStatus
					Token string `json:"token"`
				}
				err := q.SendPostRequest(ctx, querier.TenantPath(tenantID, "/recipe/user/email/verify/token"), map[string]any{
					"userId": userID,
					"email":  email,
				}, &resp)
				if err != nil {
					return "", err
				}
				switch resp.Status {
				case "OK":
					return resp.Token, nil
				case "EMAIL_ALREADY_VERIFIED_ERROR":
					return "", ErrEmailAlreadyVerified
				default:
					return "", fmt.Errorf("emailverification: create token: unexpected status %q", resp.Status)
				}
			},

			VerifyEmailUsingToken: func(ctx context.Context, tenantID, token string) (string, string, error) {
				var resp struct {
					coreStatus
					UserID string `json:"userId"`
					Email  string `json:"email"`
				}
				err := q.SendPostRequest(ctx, querier.TenantPath(tenantID, "/recipe/user/email/verify"), map[string]any{
					"method": "token",
					"token":  token,
				}, &resp)
				if err != nil {
					return "", "", err
				}
				switch resp.Status {
				case "OK":
					return resp.UserID, resp.Email, nil
				case "EMAIL_VERIFICATION_INVALID_TOKEN_ERROR":
					return "", "", ErrInvalidToken
				default:
					return "", "", fmt.Errorf("emailverification: verify token: unexpected status %q", resp.Status)
				}
			},

			IsEmailVerified: func(ctx context.Context, userID, email string) (bool, error) {
				var resp struct {
					coreStatus
					IsVerified bool `json:"isVerified"`
				}
				err := q.SendGetRequest(ctx, "/recipe/user/email/verify", url.Values{
					"userId": {userID},
					"email":  {email},
				}, &resp)
				if err != nil {
					return false, err
				}
				return resp.IsVerified, nil
			},

			RevokeEmailVerificationTokens: func(ctx context.Context, tenantID, userID, email string) error {
				return q.SendPostRequest(ctx, querier.TenantPath(tenantID, "/recipe/user/email/verify/token/remove"), map[string]any{
					"userId": userID,
					"email":  email,
				}, nil)
			},

			UnverifyEmail: func(ctx context.Context, userID, email string) error {
				return q.SendPostRequest(ctx, "/recipe/user/email/verify/remove", map[string]any{
					"userId": userID,
					"email":  email,
				}, nil)
			},
		}
	}
}
