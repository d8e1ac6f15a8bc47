package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix                = "user:%d"
	RegistrationStatsKey         = "registration_requests:stats"
	RegistrationRequestKeyPrefix = "registration_request:%d"
)

const (
	UserTTL                = 5 * time.Minute
	RegistrationStatsTTL   = 30 * time.Second
	RegistrationRequestTTL = 2 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func RegistrationRequestKey(id uint) string {
	return fmt.Sprintf(RegistrationRequestKeyPrefix, id)
}

func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

// InvalidateRegistration drops cached state touched by a submission or review.
func InvalidateRegistration(ctx context.Context, id uint) {
	Invalidate(ctx, RegistrationStatsKey, RegistrationRequestKey(id))
}
