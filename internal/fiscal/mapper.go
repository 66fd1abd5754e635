package fiscal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// Authorization holds the fiscal fields granted for a sale.
type Authorization struct {
	AuthCode       string
	AuthExpiry     *time.Time
	AssignedNumber int64
}

var (
	codeKeys     = []string{"cae", "CAE", "auth_code", "authCode", "authorization_code", "codigo_autorizacion"}
	expiryKeys   = []string{"cae_vto", "CAEFchVto", "cae_fch_vto", "auth_expiry", "authExpiry", "vencimiento", "expires_at"}
	numberKeys   = []string{"numero", "CbteDesde", "cbte_desde", "CbteNro", "assigned_number", "assignedNumber", "number"}
	resultKeys   = []string{"resultado", "Resultado", "result", "status"}
	errorKeys    = []string{"errors", "Errors", "errores", "error"}
	expiryLayout = []string{"20060102", "2006-01-02", time.RFC3339}
)

// observationKeys only explain a rejected result; on an approved one they are warnings.
var observationKeys = []string{"observaciones", "Observaciones", "Observations", "Obs"}

// MapResponse extracts the fiscal fields from an authority response. Nested
// "data", "result" or "FeDetResp" envelopes are searched as well. An explicit
// rejection or a response without an authorization code is reported as an
// EXTERNAL_AUTHORIZATION error.
func MapResponse(raw RawResponse) (Authorization, error) {
	scopes := flatten(map[string]any(raw))

	if reason := rejection(scopes); reason != "" {
		return Authorization{}, shared.ExternalAuthorization(errors.New(reason), "tax authority rejected the invoice")
	}

	var auth Authorization
	if v, ok := find(scopes, codeKeys); ok {
		auth.AuthCode = strings.TrimSpace(scalarString(v))
	}
	if auth.AuthCode == "" {
		return Authorization{}, shared.ExternalAuthorization(errors.New("missing authorization code"), "tax authority response is incomplete")
	}
	if v, ok := find(scopes, expiryKeys); ok {
		s := strings.TrimSpace(scalarString(v))
		if s != "" {
			ts, err := parseExpiry(s)
			if err != nil {
				return Authorization{}, shared.ExternalAuthorization(err, "tax authority response has an invalid expiry")
			}
			auth.AuthExpiry = &ts
		}
	}
	if v, ok := find(scopes, numberKeys); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(scalarString(v)), 10, 64)
		if err == nil && n > 0 {
			auth.AssignedNumber = n
		}
	}
	return auth, nil
}

// flatten returns the response followed by its nested envelopes, innermost
// last, so lookups prefer the outer document but still reach wrapped fields.
func flatten(m map[string]any) []map[string]any {
	out := []map[string]any{m}
	for _, key := range []string{"data", "result", "FeDetResp", "FECAEDetResponse", "response"} {
		switch nested := m[key].(type) {
		case map[string]any:
			out = append(out, flatten(nested)...)
		case []any:
			if len(nested) > 0 {
				if first, ok := nested[0].(map[string]any); ok {
					out = append(out, flatten(first)...)
				}
			}
		}
	}
	return out
}

func find(scopes []map[string]any, keys []string) (any, bool) {
	for _, scope := range scopes {
		for _, k := range keys {
			if v, ok := scope[k]; ok && v != nil {
				if _, isMap := v.(map[string]any); isMap {
					continue
				}
				return v, true
			}
		}
	}
	return nil, false
}

func rejection(scopes []map[string]any) string {
	if v, ok := find(scopes, resultKeys); ok {
		switch strings.ToUpper(strings.TrimSpace(scalarString(v))) {
		case "R", "REJECTED", "RECHAZADO", "ERROR":
			if msg := errorMessages(scopes); msg != "" {
				return msg
			}
			if msg := messages(scopes, observationKeys); msg != "" {
				return msg
			}
			return "rejected"
		}
	}
	for _, scope := range scopes {
		if ok, present := scope["approved"].(bool); present && !ok {
			if msg := errorMessages(scopes); msg != "" {
				return msg
			}
			return "not approved"
		}
	}
	return errorMessages(scopes)
}

func errorMessages(scopes []map[string]any) string {
	return messages(scopes, errorKeys)
}

func messages(scopes []map[string]any, keys []string) string {
	for _, scope := range scopes {
		for _, k := range keys {
			if msg := messageText(scope[k], keys); msg != "" {
				return msg
			}
		}
	}
	return ""
}

// messageText renders a string, a list of messages or a {code, msg} object.
// An object wrapping a list under one of keys (e.g. {"Obs": [...]}) is unwrapped.
func messageText(v any, keys []string) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		var msgs []string
		for _, item := range t {
			if msg := messageText(item, nil); msg != "" {
				msgs = append(msgs, msg)
			}
		}
		return strings.Join(msgs, "; ")
	case map[string]any:
		for _, k := range keys {
			if inner, ok := t[k]; ok {
				return messageText(inner, nil)
			}
		}
		code := scalarString(firstOf(t, "code", "Code"))
		msg := scalarString(firstOf(t, "msg", "Msg", "message"))
		return strings.TrimSpace(code + " " + msg)
	}
	return ""
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func parseExpiry(s string) (time.Time, error) {
	for _, layout := range expiryLayout {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised expiry %q", s)
}
