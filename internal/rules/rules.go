// Package rules evaluates exclusion rules against message headers.
package rules

import (
	"strings"

	"github.com/mailsift/invoicesync/internal/model"
)

// IsExcluded reports whether a message matches any active exclude rule.
// Matching is case-insensitive on both operands and short-circuits on the
// first hit. A malformed From header simply fails to match.
func IsExcluded(from, subject string, ruleSet []model.Rule) bool {
	lowerFrom := strings.ToLower(from)
	lowerSubject := strings.ToLower(subject)

	for _, rule := range ruleSet {
		if !rule.Active || rule.Type != "exclude" {
			continue
		}
		value := strings.ToLower(rule.ConditionValue)

		switch rule.ConditionType {
		case model.RuleSenderContains:
			if strings.Contains(lowerFrom, value) {
				return true
			}
		case model.RuleSenderEquals:
			if lowerFrom == value {
				return true
			}
		case model.RuleSubjectContains:
			if strings.Contains(lowerSubject, value) {
				return true
			}
		case model.RuleSubjectEquals:
			if lowerSubject == value {
				return true
			}
		case model.RuleDomainEquals:
			if domain := senderDomain(lowerFrom); domain != "" && domain == value {
				return true
			}
		}
	}
	return false
}

// senderDomain extracts the domain from a From header: the substring between
// "@" and the first ">" (or end of string). Returns "" when there is no "@".
func senderDomain(from string) string {
	at := strings.Index(from, "@")
	if at < 0 {
		return ""
	}
	domain := from[at+1:]
	if end := strings.Index(domain, ">"); end >= 0 {
		domain = domain[:end]
	}
	return strings.TrimSpace(domain)
}
