package fetch

import "net/http"

// Source identifies where document bytes come from. The engine treats all
// kinds uniformly through RangeFetcher; the kind only decides which fetcher
// and decoder get built.
type Source interface {
	// Ref returns a stable, loggable identifier for the source. It is also
	// the input for the geometry-cache digest, so it must be deterministic.
	Ref() string
}

// LocalPath is a document on the local filesystem.
type LocalPath string

func (p LocalPath) Ref() string { return "file://" + string(p) }

// InMemoryBytes is a document already held in memory.
type InMemoryBytes struct {
	Name string
	Data []byte
}

func (m InMemoryBytes) Ref() string {
	if m.Name != "" {
		return "mem://" + m.Name
	}
	return "mem://anonymous"
}

// RemoteURL is a document served over HTTP(S), with optional extra request
// headers (auth tokens, cookies).
type RemoteURL struct {
	URL     string
	Headers http.Header
}

func (r RemoteURL) Ref() string { return r.URL }

// S3Object is a document stored in S3. Password is only consulted when the
// object turns out to be an encrypted container (see crypto.go).
type S3Object struct {
	Bucket   string
	Key      string
	Password string
}

func (o S3Object) Ref() string { return "s3://" + o.Bucket + "/" + o.Key }
