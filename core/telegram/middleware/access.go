package middleware

import tele "gopkg.in/telebot.v4"

// AdminOptions names the lone admin and what to tell everyone else.
// A zero AdminID disables the check, which keeps local development
// usable without a configured admin account.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware rejects updates from anyone but the admin.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.AdminID == 0 {
				return next(c)
			}
			sender := c.Sender()
			if sender == nil || sender.ID != opts.AdminID {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
