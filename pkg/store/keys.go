package store

import (
	"fmt"
	"net/url"
)

// Key layout. Sequence numbers are zero padded so that lexical order of
// version keys equals numeric order.
//
//	c/slug/{slug}                     component record
//	c/id/{id}                         slug of the component with that id
//	b/{componentID}/{branch}          branch record
//	v/{componentID}/{branch}/{seq}    version record
//	vid/{versionID}                   key of the version record
//
// Branch names are query-escaped so that "exp" and "exp/x" never share a
// scan prefix.
const (
	componentSlugPrefix = "c/slug/"
	componentIDPrefix   = "c/id/"
	branchPrefix        = "b/"
	versionPrefix       = "v/"
	versionIDPrefix     = "vid/"
	sequenceWidth       = 20
)

func componentSlugKey(slug string) string { return componentSlugPrefix + slug }

func componentIDKey(id string) string { return componentIDPrefix + id }

func branchesKey(componentID string) string { return branchPrefix + componentID + "/" }

func branchKey(componentID, name string) string {
	return branchesKey(componentID) + url.QueryEscape(name)
}

func versionsKey(componentID, branch string) string {
	return versionPrefix + componentID + "/" + url.QueryEscape(branch) + "/"
}

func versionKey(componentID, branch string, seq int64) string {
	return versionsKey(componentID, branch) + fmt.Sprintf("%0*d", sequenceWidth, seq)
}

func versionIDKey(id string) string { return versionIDPrefix + id }
