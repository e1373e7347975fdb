package detect

import (
	"net/http"
	"strings"

	"github.com/waftester/injectscan/pkg/regexcache"
)

// challengeKeywords appear on interstitial bot-defense and block pages.
var challengeKeywords = []string{
	"access denied",
	"request blocked",
	"your request has been blocked",
	"attention required",
	"checking your browser",
	"ddos protection",
	"403 forbidden",
	"generated by wordfence",
	"incapsula incident id",
}

var challengePatterns = regexcache.MustSet(
	regexcache.Signature{Name: "captcha", Pattern: `(?i)\b(?:g-recaptcha|h-captcha|hcaptcha|cf-turnstile|cf_chl_)`},
	regexcache.Signature{Name: "block-title", Pattern: `(?i)<title>[^<]*(?:blocked|denied|forbidden|just a moment)[^<]*</title>`},
	regexcache.Signature{Name: "js-challenge", Pattern: `(?i)javascript\s+(?:challenge|verification)`},
	regexcache.Signature{Name: "ip-blocked", Pattern: `(?i)your\s+ip\s+(?:address\s+)?(?:has\s+been|was|is)\s+(?:blocked|banned|flagged)`},
)

// Challenge reports whether resp is a bot-defense, challenge or explicit
// block page, and names the marker that matched.
func Challenge(resp Response) (string, bool) {
	switch resp.Status {
	case http.StatusForbidden, http.StatusTooManyRequests:
		return "status:" + http.StatusText(resp.Status), true
	}
	lower := strings.ToLower(resp.Body)
	for _, kw := range challengeKeywords {
		if strings.Contains(lower, kw) {
			return "keyword:" + kw, true
		}
	}
	if m, ok := challengePatterns.First(resp.Body); ok {
		return "pattern:" + m.Name, true
	}
	return "", false
}

func undetermined(marker string) Result {
	return Result{Verdict: Undetermined, Reason: "challenge page (" + marker + ")"}
}
