package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"html"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/internal/apperror"
)

// maxSanitizePasses bounds the fixed-point iteration; inputs that have not
// settled by then are reduced to markup-free text.
const maxSanitizePasses = 32

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeString strips markup from s and unescapes entities, repeating until
// the value no longer changes, so SanitizeString(SanitizeString(s)) equals
// SanitizeString(s).
func SanitizeString(s string) string {
	for i := 0; i < maxSanitizePasses; i++ {
		next := strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
		if next == s {
			return s
		}
		s = next
	}
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '&', 0:
			return -1
		}
		return r
	}, s))
}

// SanitizeValue sanitizes every string inside a decoded JSON value.
func SanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return SanitizeString(t)
	case []any:
		for i := range t {
			t[i] = SanitizeValue(t[i])
		}
		return t
	case map[string]any:
		for k, val := range t {
			t[k] = SanitizeValue(val)
		}
		return t
	default:
		return v
	}
}

// Sanitize caps request bodies and sanitizes query values and JSON bodies.
// Multipart uploads get the larger upload cap and are passed through
// unchanged.
func Sanitize(maxBody, maxUpload int64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery != "" {
				q := r.URL.Query()
				for key, values := range q {
					for i := range values {
						values[i] = SanitizeString(values[i])
					}
					q[key] = values
				}
				r.URL.RawQuery = q.Encode()
			}

			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if mediaType == "multipart/form-data" {
				r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
				next.ServeHTTP(w, r)
				return
			}

			raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					WriteError(w, r, &apperror.Error{
						Kind:    apperror.KindValidation,
						Code:    apperror.CodeBodyTooLarge,
						Message: "Request body too large",
						Status:  http.StatusRequestEntityTooLarge,
					})
					return
				}
				WriteError(w, r, apperror.Validation(apperror.CodeInvalidInput, "Could not read request body", nil))
				return
			}

			if len(bytes.TrimSpace(raw)) > 0 {
				raw, err = sanitizeJSON(raw)
				if err != nil {
					WriteError(w, r, apperror.Validation(apperror.CodeInvalidJSON, "Malformed JSON body", nil))
					return
				}
			}

			r.Body = io.NopCloser(bytes.NewReader(raw))
			r.ContentLength = int64(len(raw))
			r.Header.Set("Content-Length", strconv.Itoa(len(raw)))
			next.ServeHTTP(w, r)
		})
	}
}

func sanitizeJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return json.Marshal(SanitizeValue(v))
}
