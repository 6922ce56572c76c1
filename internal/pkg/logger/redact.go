package logger

import (
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// piiKeys are field names whose whole value is an address.
var piiKeys = []string{"email", "recipient", "to", "reply_to"}

// RedactEmail masks the local part of an address, keeping two characters
// and the domain: "john.doe@example.com" becomes "jo***@example.com".
// Local parts of two characters or fewer are masked entirely. A
// display-name form ("Dana <dana@x.io>") loses the name as well.
func RedactEmail(addr string) string {
	addr = strings.TrimSpace(addr)
	if open := strings.LastIndexByte(addr, '<'); open >= 0 && strings.HasSuffix(addr, ">") {
		addr = addr[open+1 : len(addr)-1]
	}
	local, domain, ok := strings.Cut(addr, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	for _, k := range piiKeys {
		if key == k || strings.HasSuffix(key, "_"+k) || strings.Contains(key, "email") {
			return RedactEmail(val)
		}
	}
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
