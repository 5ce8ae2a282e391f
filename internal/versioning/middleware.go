package versioning

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// Request headers a client can use to name an API version, checked in
// order.
const (
	AcceptVersionHeader = "Accept-Version"
	APIVersionHeader    = "X-API-Version"
)

// Response headers describing what the server speaks.
const (
	CurrentVersionHeader    = "X-API-Current-Version"
	SupportedVersionsHeader = "X-API-Supported-Versions"
)

type contextKey struct{}

// VersionMiddleware pins each request to a negotiated API version.
type VersionMiddleware struct {
	logger *logrus.Logger
}

func NewVersionMiddleware(logger *logrus.Logger) *VersionMiddleware {
	return &VersionMiddleware{logger: logger}
}

// VersionHandler negotiates the request's API version, rejects versions
// outside the supported range, and stores the result in the request
// context for handlers and feature gates.
func (vm *VersionMiddleware) VersionHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested := vm.requestedVersion(r)

		w.Header().Set(CurrentVersionHeader, Current.String())
		w.Header().Set(SupportedVersionsHeader, Range())

		if !Supported(requested) {
			vm.reject(w, r, requested)
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, requested)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestedVersion reads the version from the request, preferring
// headers over the URL path. Requests that name no version get the
// current one.
func (vm *VersionMiddleware) requestedVersion(r *http.Request) APIVersion {
	for _, header := range []string{AcceptVersionHeader, APIVersionHeader} {
		raw := r.Header.Get(header)
		if raw == "" {
			continue
		}
		v, err := Parse(raw)
		if err != nil {
			vm.logger.WithFields(logrus.Fields{
				"header":  header,
				"version": raw,
			}).Warn("Ignoring unparseable API version header")
			continue
		}
		return v
	}

	if v, ok := pathVersion(r.URL.Path); ok {
		return v
	}
	return Current
}

// pathVersion picks a version segment such as "v1" or "v1.2" out of the
// URL path.
func pathVersion(path string) (APIVersion, bool) {
	for _, part := range strings.Split(path, "/") {
		if len(part) < 2 || part[0] != 'v' {
			continue
		}
		if v, err := Parse(part[1:]); err == nil {
			return v, true
		}
	}
	return APIVersion{}, false
}

// reject answers a version outside the supported range: 426 when the
// client is behind the minimum, 501 when it asks for a major the server
// does not speak yet.
func (vm *VersionMiddleware) reject(w http.ResponseWriter, r *http.Request, requested APIVersion) {
	status := http.StatusUpgradeRequired
	message := "API version " + requested.String() + " is no longer supported"
	if requested.Major > Current.Major {
		status = http.StatusNotImplemented
		message = "API version " + requested.String() + " is not available yet"
	}

	vm.logger.WithFields(logrus.Fields{
		"requested_version": requested.String(),
		"current_version":   Current.String(),
		"path":              r.URL.Path,
	}).Warn("Rejected unsupported API version")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":      "UNSUPPORTED_API_VERSION",
			"message":   message,
			"supported": Range(),
		},
	}); err != nil {
		vm.logger.WithError(err).Error("Failed to encode version rejection")
	}
}

// GetVersion returns the version negotiated for this request.
func GetVersion(ctx context.Context) (APIVersion, bool) {
	v, ok := ctx.Value(contextKey{}).(APIVersion)
	return v, ok
}

// RequireFeature rejects requests whose negotiated version predates a
// capability.
func RequireFeature(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, ok := GetVersion(r.Context())
			if !ok || !HasFeature(v, name) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNotImplemented)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]interface{}{
						"code":    "FEATURE_NOT_AVAILABLE",
						"message": "feature " + name + " is not available in API version " + v.String(),
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
