package handlers

import (
	"net/http"
	"time"

	"github.com/scribely/backend/internal/api/request"
	"github.com/scribely/backend/internal/auth"
	"github.com/scribely/backend/internal/entitlement"
	"github.com/scribely/backend/internal/quota"
)

// callerFrom assembles the per-request identity signals: authenticated
// session (if any), client IP and the parsed entitlement cookie.
func callerFrom(r *http.Request, cookies *entitlement.CookieCodec) entitlement.Caller {
	caller := entitlement.Caller{IP: request.ClientIP(r)}

	if session := auth.GetSession(r.Context()); session != nil {
		caller.AccountID = session.AccountID
	}

	if cookie, err := cookies.Read(r); err == nil {
		caller.Cookie = cookie
	}

	return caller
}

// localUsageHint reads the advisory usage cookie for today. Zero when the
// cookie is absent, stale or malformed.
func localUsageHint(r *http.Request, day string) int64 {
	cookie, err := r.Cookie(entitlement.UsageCookieName)
	if err != nil {
		return 0
	}
	return quota.ParseUsageHint(cookie.Value, day)
}

// setUsageCookie refreshes the advisory usage cookie. Its lifetime barely
// exceeds the reporting day; the counter store stays authoritative.
func setUsageCookie(w http.ResponseWriter, day string, used int64, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     entitlement.UsageCookieName,
		Value:    quota.FormatUsageHint(day, used),
		Path:     "/",
		MaxAge:   int((24*time.Hour + time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
