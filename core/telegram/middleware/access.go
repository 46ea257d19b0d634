package middleware

import tele "gopkg.in/telebot.v4"

// AccessOptions defines how privileged-only checks should behave.
type AccessOptions struct {
	// PrivilegedIDs is the static set of user IDs allowed to run restricted
	// handlers. Resolved once at startup from configuration.
	PrivilegedIDs map[int64]struct{}
	OnReject      tele.HandlerFunc
}

// NewAccessOptions builds AccessOptions from a plain ID list.
func NewAccessOptions(ids []int64, onReject tele.HandlerFunc) AccessOptions {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return AccessOptions{PrivilegedIDs: set, OnReject: onReject}
}

// Allowed reports whether the user ID belongs to the privileged set.
func (o AccessOptions) Allowed(userID int64) bool {
	_, ok := o.PrivilegedIDs[userID]
	return ok
}

// PrivilegedOnlyMiddleware ensures that only privileged users reach downstream handlers.
func PrivilegedOnlyMiddleware(opts AccessOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if len(opts.PrivilegedIDs) == 0 || !opts.Allowed(c.Sender().ID) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
