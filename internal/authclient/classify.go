package authclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/abduss/labportal/internal/apiclient"
	"github.com/abduss/labportal/internal/auth"
)

// errorBody covers the FastAPI detail shape and the flat errors map.
type errorBody struct {
	Detail  json.RawMessage            `json:"detail"`
	Message string                     `json:"message"`
	Error   string                     `json:"error"`
	Errors  map[string]json.RawMessage `json:"errors"`
}

type detailItem struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// classify maps a transport result onto the auth error taxonomy. Credential
// endpoints report 401 as invalid credentials, everything else as unauthorized.
func classify(err error, credentialCall bool) error {
	if err == nil {
		return nil
	}

	var transportErr *apiclient.TransportError
	if errors.As(err, &transportErr) {
		return &auth.Error{Kind: auth.KindNetwork, Message: "identity service unreachable", Err: err}
	}

	var statusErr *apiclient.StatusError
	if !errors.As(err, &statusErr) {
		return &auth.Error{Kind: auth.KindUnknown, Message: "unexpected identity service response", Err: err}
	}

	message, fields := parseErrorBody(statusErr.Body)

	switch statusErr.StatusCode {
	case http.StatusUnauthorized:
		kind := auth.KindUnauthorized
		if credentialCall {
			kind = auth.KindInvalidCredentials
		}
		return &auth.Error{Kind: kind, Message: orDefault(message, kind), StatusCode: statusErr.StatusCode, Err: err}
	case http.StatusForbidden:
		return &auth.Error{Kind: auth.KindForbidden, Message: orDefault(message, auth.KindForbidden), StatusCode: statusErr.StatusCode, Err: err}
	case http.StatusUnprocessableEntity:
		if fields == nil {
			fields = map[string][]string{}
		}
		return &auth.Error{Kind: auth.KindValidation, Message: orDefault(message, auth.KindValidation), Fields: fields, StatusCode: statusErr.StatusCode, Err: err}
	case http.StatusBadRequest:
		if len(fields) > 0 {
			return &auth.Error{Kind: auth.KindValidation, Message: orDefault(message, auth.KindValidation), Fields: fields, StatusCode: statusErr.StatusCode, Err: err}
		}
	}

	return &auth.Error{Kind: auth.KindUnknown, Message: orDefault(message, auth.KindUnknown), StatusCode: statusErr.StatusCode, Err: err}
}

func orDefault(message string, kind auth.ErrorKind) string {
	if message != "" {
		return message
	}
	switch kind {
	case auth.KindInvalidCredentials:
		return "invalid credentials"
	case auth.KindUnauthorized:
		return "unauthorized"
	case auth.KindForbidden:
		return "forbidden"
	case auth.KindValidation:
		return "validation failed"
	default:
		return "unknown error"
	}
}

func parseErrorBody(data []byte) (string, map[string][]string) {
	if len(data) == 0 {
		return "", nil
	}

	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		return "", nil
	}

	message := body.Message
	if message == "" {
		message = body.Error
	}

	fields := map[string][]string{}

	if len(body.Detail) > 0 {
		var text string
		var items []detailItem
		switch {
		case json.Unmarshal(body.Detail, &text) == nil:
			if message == "" {
				message = text
			}
		case json.Unmarshal(body.Detail, &items) == nil:
			for _, item := range items {
				name := fieldName(item.Loc)
				fields[name] = append(fields[name], item.Msg)
			}
		}
	}

	for name, raw := range body.Errors {
		var many []string
		var one string
		switch {
		case json.Unmarshal(raw, &many) == nil:
			fields[name] = append(fields[name], many...)
		case json.Unmarshal(raw, &one) == nil:
			fields[name] = append(fields[name], one)
		}
	}

	if len(fields) == 0 {
		return message, nil
	}
	return message, fields
}

// fieldName picks the innermost location segment, skipping the request section prefix.
func fieldName(loc []any) string {
	for i := len(loc) - 1; i >= 0; i-- {
		seg := fmt.Sprint(loc[i])
		switch seg {
		case "body", "query", "path", "header":
			continue
		}
		if strings.TrimSpace(seg) != "" {
			return seg
		}
	}
	return "_"
}
