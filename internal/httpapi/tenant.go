package httpapi

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/vitality-ai/warpdrive/internal/apierr"
	"github.com/vitality-ai/warpdrive/internal/config"
	"github.com/vitality-ai/warpdrive/internal/tenant"
)

var asciiOnly = regexp.MustCompile(`^[\x00-\x7F]+$`)

// nativeTenant derives a tenant.Context from the native API's User/Bucket
// headers, folding every other header into Metadata, per §4.5/§6.
func nativeTenant(r *http.Request) (tenant.Context, error) {
	user := r.Header.Get("User")
	if user == "" || !asciiOnly.MatchString(user) {
		return tenant.Context{}, apierr.Wrap(apierr.ErrBadRequest, "missing or non-ASCII User header")
	}
	bucket := r.Header.Get("Bucket")

	meta := map[string]string{}
	for name, values := range r.Header {
		if len(values) == 0 {
			continue
		}
		switch strings.ToLower(name) {
		case "user", "bucket":
			continue
		}
		meta[name] = values[0]
	}

	return tenant.New(user, bucket, meta), nil
}

// credentialPattern matches the Credential=access_key/date/region/service/
// aws4_request component of a SigV4 Authorization header; only the access
// key is extracted, per §4.5.
var credentialPattern = regexp.MustCompile(`Credential=([^/,\s]+)/`)

// s3AccessKey extracts the SigV4 access key from the Authorization header.
func s3AccessKey(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", apierr.Wrap(apierr.ErrUnauthorized, "missing Authorization header")
	}
	m := credentialPattern.FindStringSubmatch(auth)
	if m == nil {
		return "", apierr.Wrap(apierr.ErrBadRequest, "malformed SigV4 Authorization header")
	}
	return m[1], nil
}

// s3PathPrefix is the path prefix the S3 surface is mounted under, per
// SPEC_FULL.md Open Question resolution #5.
const s3PathPrefix = "/s3/"

// s3Bucket returns the bucket named by the first path segment after the
// optional /s3/ prefix.
func s3Bucket(path string) string {
	path = strings.TrimPrefix(path, s3PathPrefix)
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

// s3Key returns the object key: everything after the bucket segment.
func s3Key(path string) string {
	path = strings.TrimPrefix(path, s3PathPrefix)
	path = strings.TrimPrefix(path, "/")
	i := strings.IndexByte(path, '/')
	if i < 0 {
		return ""
	}
	return path[i+1:]
}

// s3Tenant derives a tenant.Context for an S3 request: validates the
// access key against the configured allowlist and the bucket against the
// blocklist, per §4.5.
func s3Tenant(r *http.Request, cfg *config.S3Config) (tenant.Context, error) {
	accessKey, err := s3AccessKey(r)
	if err != nil {
		return tenant.Context{}, err
	}

	allowed := false
	for _, k := range cfg.AccessKeys {
		if k == accessKey {
			allowed = true
			break
		}
	}
	if !allowed {
		return tenant.Context{}, apierr.Wrap(apierr.ErrUnauthorized, "unrecognized access key")
	}

	bucket := s3Bucket(r.URL.Path)
	for _, blocked := range cfg.BlockedBuckets {
		if bucket == blocked {
			return tenant.Context{}, apierr.Wrap(apierr.ErrUnauthorized, "bucket is denied by policy")
		}
	}

	userID := "s3_user_" + accessKey
	meta := map[string]string{}
	for name, values := range r.Header {
		if len(values) == 0 {
			continue
		}
		meta[name] = values[0]
	}
	return tenant.New(userID, bucket, meta), nil
}
