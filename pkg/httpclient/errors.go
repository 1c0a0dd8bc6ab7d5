package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	apperrors "github.com/Duong-Anh-Duc/KH/pkg/errors"
	"github.com/Duong-Anh-Duc/KH/pkg/httputil"
)

const maxErrorBody = 1 << 20

// ParseResponseError turns a non-2xx response into an error. A body in the
// API's error envelope keeps its kind, with the peer name, field messages and
// request id folded into the message. Other bodies are classified by status
// alone. The body is consumed and closed.
func ParseResponseError(resp *http.Response, peer string) error {
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", peer, resp.StatusCode, err)
	}

	var env httputil.Response
	if json.Unmarshal(raw, &env) == nil && env.Error != nil {
		msg := describe(peer, env.Error)
		if appErr := apperrors.FromStatus(resp.StatusCode, env.Error.Code, msg); appErr != nil {
			return appErr
		}
		return &apperrors.AppError{Code: env.Error.Code, Message: msg, Status: resp.StatusCode}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NotFound(peer, requestPath(resp))
	case resp.StatusCode == http.StatusUnauthorized:
		// Proxies answer 401 without an envelope when the token is missing
		// or rejected upstream of the API.
		return apperrors.InvalidToken()
	case resp.StatusCode >= http.StatusInternalServerError:
		return apperrors.UpstreamUnavailable(fmt.Errorf("%s returned status %d: %s", peer, resp.StatusCode, raw))
	}
	return fmt.Errorf("%s returned status %d: %s", peer, resp.StatusCode, raw)
}

func describe(peer string, e *httputil.ErrorResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", peer, e.Message)
	if len(e.Fields) > 0 {
		names := make([]string, 0, len(e.Fields))
		for name := range e.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for i, name := range names {
			sep := ", "
			if i == 0 {
				sep = " ["
			}
			fmt.Fprintf(&b, "%s%s: %s", sep, name, e.Fields[name])
		}
		b.WriteString("]")
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, " (request %s)", e.RequestID)
	}
	return b.String()
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

func requestPath(resp *http.Response) string {
	if resp.Request == nil || resp.Request.URL == nil {
		return "unknown"
	}
	return resp.Request.URL.Path
}
