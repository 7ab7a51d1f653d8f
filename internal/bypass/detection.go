package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Response is the slice of an HTTP exchange the detectors inspect.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Detection names the protection that challenged a request.
type Detection struct {
	Detected bool
	Source   string // e.g. "Cloudflare", "Akamai", "PerimeterX", "DataDome", "Aliyun"
}

// Detector examines a response to determine if a bot protection mechanism
// blocked or challenged the request.
type Detector func(res *Response) (detected bool, source string)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
		detectAliyun,
		detectGeetest,
	}
}

// Analyze runs the response through detectors and reports the first hit.
func Analyze(res *Response, detectors []Detector) Detection {
	if res == nil {
		return Detection{}
	}
	for _, d := range detectors {
		if detected, source := d(res); detected {
			return Detection{Detected: true, Source: source}
		}
	}
	return Detection{}
}

func server(res *Response) string {
	return strings.ToLower(res.Header.Get("Server"))
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(res *Response) (bool, string) {
	// Status codes 403 or 503 are common for CF challenges
	if res.StatusCode == http.StatusForbidden || res.StatusCode == http.StatusServiceUnavailable {
		if strings.Contains(server(res), "cloudflare") {
			return true, "Cloudflare"
		}

		if bytes.Contains(res.Body, []byte("cf-browser-verification")) ||
			bytes.Contains(res.Body, []byte("cloudflare-nginx")) ||
			bytes.Contains(res.Body, []byte("cf-turnstile")) ||
			bytes.Contains(res.Body, []byte("Attention Required! | Cloudflare")) {
			return true, "Cloudflare"
		}
	}
	// Managed challenges can be served with 200.
	if bytes.Contains(res.Body, []byte("/cdn-cgi/challenge-platform/")) && bytes.Contains(res.Body, []byte("Just a moment")) {
		return true, "Cloudflare"
	}
	return false, ""
}

// detectAkamai looks for Akamai Bot Manager signatures.
func detectAkamai(res *Response) (bool, string) {
	if res.StatusCode == http.StatusForbidden {
		if strings.Contains(server(res), "akamai") {
			return true, "Akamai"
		}

		// Akamai often returns a generic "Reference #" block page
		if bytes.Contains(res.Body, []byte("Reference #")) && bytes.Contains(res.Body, []byte("Access Denied")) {
			return true, "Akamai"
		}
	}
	return false, ""
}

// detectDataDome looks for DataDome challenge/block signatures.
func detectDataDome(res *Response) (bool, string) {
	if res.StatusCode == http.StatusForbidden {
		if strings.Contains(server(res), "datadome") {
			return true, "DataDome"
		}
		if res.Header.Get("X-DataDome") != "" || res.Header.Get("X-DataDome-Response") != "" {
			return true, "DataDome"
		}
		if bytes.Contains(res.Body, []byte("geo.captcha-delivery.com")) || bytes.Contains(res.Body, []byte("datadome")) {
			return true, "DataDome"
		}
	}
	return false, ""
}

// detectPerimeterX looks for PerimeterX (HUMAN) signatures.
func detectPerimeterX(res *Response) (bool, string) {
	if res.StatusCode == http.StatusForbidden {
		if res.Header.Get("X-Px-Captcha") != "" {
			return true, "PerimeterX"
		}
		if bytes.Contains(res.Body, []byte("client.perimeterx.net")) ||
			bytes.Contains(res.Body, []byte("px-captcha")) ||
			bytes.Contains(res.Body, []byte("_pxBlock")) {
			return true, "PerimeterX"
		}
	}
	return false, ""
}

// detectAliyun looks for the Alibaba Cloud slider interstitial used by
// Taobao and Tmall. It is served with 200.
func detectAliyun(res *Response) (bool, string) {
	if bytes.Contains(res.Body, []byte("_____tmd_____")) ||
		bytes.Contains(res.Body, []byte("x5secdata")) ||
		bytes.Contains(res.Body, []byte("nc_1_n1z")) {
		return true, "Aliyun"
	}
	return false, ""
}

// detectGeetest looks for an embedded GeeTest captcha widget.
func detectGeetest(res *Response) (bool, string) {
	if bytes.Contains(res.Body, []byte("static.geetest.com")) || bytes.Contains(res.Body, []byte("gt_captcha")) {
		return true, "GeeTest"
	}
	return false, ""
}
