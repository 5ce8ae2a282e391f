// Package versioning negotiates the API version a client speaks and
// reports which capabilities each version carries.
package versioning

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// APIVersion is a semantic API version. The zero value means no version
// was named.
type APIVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

var (
	// Current is the version this build serves.
	Current = APIVersion{Major: 1, Minor: 2}

	// Minimum is the oldest version still accepted on the wire.
	Minimum = APIVersion{Major: 1}
)

func (v APIVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare orders two versions: negative when v is older than other,
// zero when equal, positive when newer.
func (v APIVersion) Compare(other APIVersion) int {
	if v.Major != other.Major {
		return v.Major - other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor - other.Minor
	}
	return v.Patch - other.Patch
}

// Parse reads "1", "1.2", or "1.2.3" into an APIVersion. Omitted
// components are zero.
func Parse(s string) (APIVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return APIVersion{}, fmt.Errorf("invalid version %q", s)
	}

	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return APIVersion{}, fmt.Errorf("invalid version %q", s)
		}
		nums[i] = n
	}
	return APIVersion{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// Supported reports whether a requested version can be served. Versions
// behind Minimum are gone; majors ahead of Current do not exist yet.
func Supported(v APIVersion) bool {
	return v.Compare(Minimum) >= 0 && v.Major <= Current.Major
}

// Range describes the accepted versions for response headers.
func Range() string {
	return Minimum.String() + " - " + Current.String()
}

// Feature is a named API capability and the version that introduced it.
type Feature struct {
	Name        string     `json:"name"`
	Since       APIVersion `json:"since"`
	Description string     `json:"description"`
}

// features lists every capability the API exposes, oldest first.
var features = []Feature{
	{Name: "cloud_ingestion", Since: APIVersion{Major: 1}, Description: "Cloud API webhook ingestion into the conversation ledger"},
	{Name: "qr_bridge", Since: APIVersion{Major: 1}, Description: "QR-paired device ingestion including history sync"},
	{Name: "webhook_authentication", Since: APIVersion{Major: 1}, Description: "Signed webhook verification"},
	{Name: "chat_api", Since: APIVersion{Major: 1}, Description: "Conversation and message read endpoints"},
	{Name: "integration_dispatch", Since: APIVersion{Major: 1, Minor: 1}, Description: "Signed event delivery to integration targets"},
	{Name: "structured_errors", Since: APIVersion{Major: 1, Minor: 1}, Description: "Error responses with stable codes"},
	{Name: "metrics_endpoint", Since: APIVersion{Major: 1, Minor: 1}, Description: "Operational metrics endpoint"},
	{Name: "campaign_tracking", Since: APIVersion{Major: 1, Minor: 2}, Description: "Campaign delivery rollups driven by status receipts"},
	{Name: "feature_flags", Since: APIVersion{Major: 1, Minor: 2}, Description: "Runtime feature toggles"},
}

// FeaturesFor returns the capabilities available at a given version.
func FeaturesFor(v APIVersion) []Feature {
	out := make([]Feature, 0, len(features))
	for _, f := range features {
		if v.Compare(f.Since) >= 0 {
			out = append(out, f)
		}
	}
	return out
}

// HasFeature reports whether a capability exists at a given version.
func HasFeature(v APIVersion, name string) bool {
	for _, f := range features {
		if f.Name == name {
			return v.Compare(f.Since) >= 0
		}
	}
	return false
}

// VersionInfo is the payload of the version endpoint.
type VersionInfo struct {
	API       APIVersion `json:"api_version"`
	Build     string     `json:"build_version"`
	Commit    string     `json:"git_commit,omitempty"`
	GoVersion string     `json:"go_version"`
	Features  []Feature  `json:"features,omitempty"`
}

// DefaultVersionInfo describes the running build. Build and Commit hold
// development placeholders until the caller fills them in from its
// build metadata.
func DefaultVersionInfo() VersionInfo {
	return VersionInfo{
		API:       Current,
		Build:     "dev",
		GoVersion: runtime.Version(),
	}
}
