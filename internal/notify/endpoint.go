package notify

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrInvalidEndpoint is returned for endpoints that name no topic or subject.
var ErrInvalidEndpoint = errors.New("invalid notification endpoint")

// Kind is the transport an endpoint is delivered over.
type Kind int

const (
	KindNtfy Kind = iota
	KindNATS
)

func (k Kind) String() string {
	if k == KindNATS {
		return "nats"
	}
	return "ntfy"
}

// Endpoint is a parsed notification target.
type Endpoint struct {
	Kind Kind
	// Server is the ntfy server root or the NATS server URL. Empty for a
	// bare ntfy topic, which goes to the client's default server.
	Server string
	// Topic is the ntfy topic or the NATS subject.
	Topic string
}

// ParseEndpoint accepts a bare ntfy topic ("my-topic"), an ntfy topic URL
// ("https://ntfy.example.com/my-topic") or a NATS subject URL
// ("nats://127.0.0.1:4222/alerts.vanity").
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("%w: empty", ErrInvalidEndpoint)
	}

	if !strings.Contains(raw, "://") {
		if strings.ContainsAny(raw, "/ \t") {
			return Endpoint{}, fmt.Errorf("%w: %q is not a topic name", ErrInvalidEndpoint, raw)
		}
		return Endpoint{Kind: KindNtfy, Topic: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("%w: %q has no host", ErrInvalidEndpoint, raw)
	}

	switch u.Scheme {
	case "nats", "tls":
		subject := strings.Trim(u.Path, "/")
		if subject == "" || strings.Contains(subject, "/") {
			return Endpoint{}, fmt.Errorf("%w: %q needs one subject path segment", ErrInvalidEndpoint, raw)
		}
		server := url.URL{Scheme: u.Scheme, User: u.User, Host: u.Host}
		return Endpoint{Kind: KindNATS, Server: server.String(), Topic: subject}, nil
	case "http", "https":
		p := strings.TrimRight(u.Path, "/")
		topic := path.Base(p)
		if p == "" || topic == "/" || topic == "." {
			return Endpoint{}, fmt.Errorf("%w: %q has no topic", ErrInvalidEndpoint, raw)
		}
		server := url.URL{Scheme: u.Scheme, User: u.User, Host: u.Host, Path: strings.TrimSuffix(path.Dir(p), "/")}
		return Endpoint{Kind: KindNtfy, Server: server.String(), Topic: topic}, nil
	default:
		return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
}

func (e Endpoint) String() string {
	if e.Server == "" {
		return e.Topic
	}
	return strings.TrimRight(e.Server, "/") + "/" + e.Topic
}
