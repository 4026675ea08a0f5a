// Package tenant carries the identity a request is scoped to as it flows
// through the chunk store, metadata index, and object assembler.
package tenant

// Context identifies the (user, bucket) a request operates against, plus
// whatever other headers the caller sent that aren't part of that identity.
//
// Every CS/MI/OA operation takes a Context so that storage keys and
// metadata rows are always scoped to a single tenant's bucket; nothing in
// this package enforces isolation beyond that — callers are expected to
// derive Context once per request and thread it through.
type Context struct {
	UserID string
	Bucket string

	// Metadata holds the request headers that aren't User/Bucket, captured
	// verbatim so RP can log or forward them without re-parsing the
	// original HTTP request.
	Metadata map[string]string
}

// DefaultBucket is used when a native request omits the Bucket header.
const DefaultBucket = "default"

// New builds a Context, defaulting Bucket when empty.
func New(userID, bucket string, metadata map[string]string) Context {
	if bucket == "" {
		bucket = DefaultBucket
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	return Context{UserID: userID, Bucket: bucket, Metadata: metadata}
}

// Key returns the storage-layer key this tenant's chunk log and metadata
// rows are addressed by: "{user_id}/{bucket}".
func (c Context) Key() string {
	return c.UserID + "/" + c.Bucket
}
