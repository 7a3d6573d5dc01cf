// Package version reports the release and the revision the binary was
// built from.
package version

import "fmt"

const (
	// Year is the release year
	Year = "2011"
	// Count is the release number within the year
	Count = "1"
)

// VCSInfo identifies the revision a build came from
type VCSInfo struct {
	BranchNick string
	RevisionID string
}

// Placeholder values used when the build has no version control data
const (
	LocalBranch   = "LOCALBRANCH"
	LocalRevision = "LOCALREVISION"
)

// Info returns the VCS data embedded at build time
func Info() VCSInfo {
	return vcsInfo
}

// String returns the release version, e.g. "2011.1"
func String() string {
	return Year + "." + Count
}

// VCSVersionString returns "branch:revision"
func VCSVersionString() string {
	return fmt.Sprintf("%s:%s", vcsInfo.BranchNick, vcsInfo.RevisionID)
}

// StringWithVCS returns the release version followed by the VCS version
func StringWithVCS() string {
	return fmt.Sprintf("%s-%s", String(), VCSVersionString())
}
