// Package cache holds the Redis-backed helpers: the resource type
// read-through cache and the login attempt throttle.
package cache

import "strings"

const keyPrefix = "erm:"

func key(parts ...string) string {
	return keyPrefix + strings.Join(parts, ":")
}
