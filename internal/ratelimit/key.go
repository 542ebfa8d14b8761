package ratelimit

import (
	"fmt"
	"strings"
)

// BuildKey builds the bucket identifier for an API key and client IP pair.
func BuildKey(apiKeyID uint64, clientIP string) string {
	clientIP = strings.TrimSpace(clientIP)
	if apiKeyID == 0 || clientIP == "" {
		return ""
	}
	return fmt.Sprintf("%d:ip:%s", apiKeyID, clientIP)
}
