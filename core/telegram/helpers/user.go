package helpers

import (
	"context"

	tele "gopkg.in/telebot.v4"
)

const userKey = "domain_user"

// StoreUser stashes the resolved user row on the update context so
// handlers down the chain skip the lookup. The type parameter keeps
// this package free of a models import.
func StoreUser[T any](c tele.Context, user T) {
	if c == nil {
		return
	}
	c.Set(userKey, user)
}

// UserFrom returns the stashed domain user, if middleware resolved one.
func UserFrom[T any](c tele.Context) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}
	if v := c.Get(userKey); v != nil {
		if user, ok := v.(T); ok {
			return user, true
		}
	}
	return zero, false
}

// ResolveUser returns the stashed user or falls back to the service,
// get-or-creating the row keyed by the Telegram sender.
func ResolveUser[T any](
	ctx context.Context,
	c tele.Context,
	service interface {
		GetOrCreateUser(context.Context, int64, string) (T, error)
	},
) (T, error) {
	if user, ok := UserFrom[T](c); ok {
		return user, nil
	}
	var zero T
	sender := c.Sender()
	if sender == nil || service == nil {
		return zero, nil
	}
	user, err := service.GetOrCreateUser(ctx, sender.ID, sender.Username)
	if err != nil {
		return zero, err
	}
	StoreUser(c, user)
	return user, nil
}
