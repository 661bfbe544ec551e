package browser

import (
	"net/url"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// CookieParam describes a cookie to set on a page
type CookieParam struct {
	Name     string    `json:"name" yaml:"name" validate:"required"`
	Value    string    `json:"value" yaml:"value"`
	URL      string    `json:"url,omitempty" yaml:"url,omitempty"`
	Domain   string    `json:"domain,omitempty" yaml:"domain,omitempty"`
	Path     string    `json:"path,omitempty" yaml:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty" yaml:"expires,omitempty"`
	HTTPOnly bool      `json:"http_only,omitempty" yaml:"http_only,omitempty"`
	Secure   bool      `json:"secure,omitempty" yaml:"secure,omitempty"`
}

// Cookie is a cookie read back from a page
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	HTTPOnly bool      `json:"http_only"`
	Secure   bool      `json:"secure"`
}

// ToCookieParams converts cookies for SetCookies. Cookies without a URL or
// domain are scoped to targetURL.
func ToCookieParams(targetURL string, cookies []CookieParam) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	parsedURL, _ := url.Parse(targetURL)

	for _, cookie := range cookies {
		param := &proto.NetworkCookieParam{
			Name:     cookie.Name,
			Value:    cookie.Value,
			URL:      cookie.URL,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Secure:   cookie.Secure,
			HTTPOnly: cookie.HTTPOnly,
		}

		if !cookie.Expires.IsZero() {
			param.Expires = proto.TimeSinceEpoch(cookie.Expires.Unix())
		}

		if param.URL == "" && param.Domain == "" && parsedURL != nil && parsedURL.Host != "" {
			param.URL = parsedURL.String()
		}

		params = append(params, param)
	}

	return params
}

// FromProto converts a cookie read through the DevTools protocol
func FromProto(c *proto.NetworkCookie) Cookie {
	cookie := Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
	}
	// session cookies report -1
	if c.Expires > 0 {
		cookie.Expires = time.Unix(int64(c.Expires), 0).UTC()
	}
	return cookie
}
