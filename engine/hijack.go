package engine

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypeByName maps config strings to rod protocol resource types.
var resourceTypeByName = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// adDomains is a set of ad and tracking domains common on retail sites.
// Blocking them cuts page weight and keeps DOM-stable waits from chasing
// tracker activity.
var adDomains = map[string]struct{}{
	"doubleclick.net":        {},
	"googlesyndication.com":  {},
	"googleadservices.com":   {},
	"google-analytics.com":   {},
	"googletagmanager.com":   {},
	"facebook.net":           {},
	"facebook.com":           {},
	"fbcdn.net":              {},
	"criteo.com":             {},
	"criteo.net":             {},
	"adnxs.com":              {},
	"amazon-adsystem.com":    {},
	"outbrain.com":           {},
	"taboola.com":            {},
	"hotjar.com":             {},
	"mixpanel.com":           {},
	"segment.io":             {},
	"segment.com":            {},
	"scorecardresearch.com":  {},
	"quantserve.com":         {},
	"optimizely.com":         {},
	"demdex.net":             {},
	"bluekai.com":            {},
	"pubmatic.com":           {},
	"rubiconproject.com":     {},
	"openx.net":              {},
	"casalemedia.com":        {},
	"sharethis.com":          {},
	"addthis.com":            {},
	"consensu.org":           {},
}

// isAdDomain checks a hostname and its parent domains against the
// blocklist (e.g. "pagead2.googlesyndication.com" matches
// "googlesyndication.com").
func isAdDomain(host string) bool {
	host = strings.ToLower(host)
	if _, ok := adDomains[host]; ok {
		return true
	}
	for {
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
		if _, ok := adDomains[host]; ok {
			return true
		}
	}
	return false
}

// mountHijack installs a request interceptor that blocks the configured
// resource types and ad/tracking domains. Catalog grids only need their
// markup, so images and fonts are dead weight.
//
// Returns the running router so the caller can defer router.Stop(), or
// nil when there is nothing to block.
func mountHijack(page *rod.Page, blockedTypes []string, blockAds bool) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := resourceTypeByName[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 && !blockAds {
		return nil
	}

	router := page.HijackRequests()

	// Pattern "*" + empty resourceType intercepts every request; the
	// block decision happens per request below.
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, shouldBlock := blocked[ctx.Request.Type()]; shouldBlock {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}

		if blockAds {
			if u, err := url.Parse(ctx.Request.URL().String()); err == nil {
				if isAdDomain(u.Hostname()) {
					ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
					return
				}
			}
		}

		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks until router.Stop(), so it gets its own
	// goroutine.
	go router.Run()

	return router
}
