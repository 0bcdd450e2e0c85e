package cache

import (
	"fmt"
	"time"
)

const (
	UserKeyPrefix      = "user:%d"
	UserPhoneKeyPrefix = "user:phone:%s"
)

const (
	UserTTL = 5 * time.Minute
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func UserPhoneKey(phone string) string {
	return fmt.Sprintf(UserPhoneKeyPrefix, phone)
}
