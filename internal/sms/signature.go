package sms

import (
	"net/url"

	twclient "github.com/twilio/twilio-go/client"
)

// SignatureHeader carries Twilio's request signature.
const SignatureHeader = "X-Twilio-Signature"

// ValidSignature reports whether signature matches a form POST to fullURL.
func ValidSignature(authToken, fullURL string, params url.Values, signature string) bool {
	if signature == "" || authToken == "" {
		return false
	}
	form := make(map[string]string, len(params))
	for k := range params {
		form[k] = params.Get(k)
	}
	v := twclient.NewRequestValidator(authToken)
	return v.Validate(fullURL, form, signature)
}
