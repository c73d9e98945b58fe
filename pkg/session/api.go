package session

import (
	"context"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
	"github.com/aussiebroadwan/tabsession/pkg/framework"
)

func makeAPIImplementation(r *Recipe) func(self *APIInterface) APIInterface {
	return func(self *APIInterface) APIInterface {
		return APIInterface{
			RefreshPOST: func(req framework.Request, res framework.Response) error {
				if _, err := r.RefreshSession(req, res); err != nil {
					return err
				}
				return res.SendJSONResponse(map[string]string{"status": "OK"})
			},

			SignOutPOST: func(req framework.Request, res framework.Response) error {
				notRequired := false
				s, err := self.VerifySession(req, res, VerifySessionOptions{
					SessionRequired: &notRequired,
					OverrideGlobalClaimValidators: func(context.Context, []*claims.Validator, SessionContainer) ([]*claims.Validator, error) {
						return nil, nil
					},
				})
				if err != nil {
					return err
				}
				if s != nil {
					if err := s.RevokeSession(req.Context()); err != nil {
						return err
					}
				}
				return res.SendJSONResponse(map[string]string{"status": "OK"})
			},

			VerifySession: func(req framework.Request, res framework.Response, opts VerifySessionOptions) (SessionContainer, error) {
				return r.GetSession(req, res, opts)
			},
		}
	}
}
