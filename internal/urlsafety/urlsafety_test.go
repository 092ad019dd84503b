package urlsafety

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fixedResolver map[string][]net.IP

func (f fixedResolver) LookupIPAddr(host string) ([]net.IP, error) {
	ips, ok := f[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return ips, nil
}

func TestCheck_TableDriven(t *testing.T) {
	cases := []struct {
		name     string
		url      string
		resolver Resolver
		wantErr  bool
	}{
		{"plain https host", "https://example.com/report", fixedResolver{"example.com": {net.ParseIP("93.184.216.34")}}, false},
		{"plain http host", "http://example.com/report", fixedResolver{"example.com": {net.ParseIP("93.184.216.34")}}, false},
		{"file scheme rejected", "file:///etc/passwd", nil, true},
		{"ftp scheme rejected", "ftp://example.com/x", nil, true},
		{"literal loopback ip", "http://127.0.0.1/admin", nil, true},
		{"literal loopback ipv6", "http://[::1]/admin", nil, true},
		{"localhost hostname", "http://localhost:8080/", nil, true},
		{"metadata hostname", "http://metadata.google.internal/latest/meta-data", nil, true},
		{"unspecified address", "http://0.0.0.0/", nil, true},
		{"link local", "http://169.254.169.254/latest/meta-data", nil, true},
		{"private class a", "http://10.1.2.3/", nil, true},
		{"private class b", "http://172.16.0.5/", nil, true},
		{"private class c", "http://192.168.1.1/", nil, true},
		{"resolves to loopback", "http://internal.example.com/", fixedResolver{"internal.example.com": {net.ParseIP("127.0.0.1")}}, true},
		{"resolves to private", "http://internal.example.com/", fixedResolver{"internal.example.com": {net.ParseIP("10.0.0.5")}}, true},
		{"unresolvable host", "http://nowhere.invalid/", fixedResolver{}, true},
		{"too long", "http://example.com/" + string(make([]byte, 2100)), nil, true},
		{"empty host", "http:///path", nil, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := Check(c.url, c.resolver)
			if c.wantErr {
				assert.ErrorIs(t, err, ErrUnsafeURL)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
