package auth

import (
	"fmt"
	"net/url"
	"strings"
)

// CallbackParams are the OAuth response parameters carried on a redirect.
type CallbackParams struct {
	AccessToken      string
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// ParseCallback extracts OAuth parameters from a captured redirect URL.
// Implicit-grant providers put them in the fragment and code-grant providers
// in the query string; capture hosts may also relay a fragment back as a
// query, so both locations are read, query first with the fragment filling
// whatever is still empty.
func ParseCallback(redirect string) (*CallbackParams, error) {
	parsed, err := url.Parse(redirect)
	if err != nil {
		return nil, fmt.Errorf("invalid callback URL: %w", err)
	}

	params := &CallbackParams{}
	params.fill(parsed.Query())
	if parsed.Fragment != "" {
		if fragQuery, errFrag := url.ParseQuery(parsed.Fragment); errFrag == nil {
			params.fill(fragQuery)
		}
	}
	return params, nil
}

// fill copies values in without overwriting fields already populated.
func (p *CallbackParams) fill(values url.Values) {
	set := func(dst *string, key string) {
		if *dst == "" {
			*dst = strings.TrimSpace(values.Get(key))
		}
	}
	set(&p.AccessToken, "access_token")
	set(&p.Code, "code")
	set(&p.State, "state")
	set(&p.Error, "error")
	set(&p.ErrorDescription, "error_description")
}
