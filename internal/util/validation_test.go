package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		wantHost string
		wantErr  string
	}{
		{name: "http", raw: "http://forecast:8000", wantHost: "forecast:8000"},
		{name: "https with path", raw: "https://eop.internal/api", wantHost: "eop.internal"},
		{name: "empty", raw: "", wantErr: "empty"},
		{name: "no scheme", raw: "forecast:8000/x", wantErr: "scheme"},
		{name: "bad scheme", raw: "ftp://forecast", wantErr: "scheme must be http or https"},
		{name: "no host", raw: "http://", wantErr: "host is missing"},
		{name: "query", raw: "http://dt:8000/?v=1", wantErr: "query and fragment"},
		{name: "fragment", raw: "http://dt:8000/#x", wantErr: "query and fragment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			u, err := ParseBaseURL(tt.raw)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				assert.Nil(t, u)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, u.Host)
		})
	}
}

func TestValidatePort(t *testing.T) {
	t.Parallel()

	for _, port := range []int{1, 3000, 65535} {
		assert.NoError(t, ValidatePort(port))
	}
	for _, port := range []int{0, -1, 65536} {
		assert.Error(t, ValidatePort(port))
	}
}

func TestParseTrustedProxy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "cidr", raw: "10.0.0.0/8", want: "10.0.0.0/8"},
		{name: "cidr is masked", raw: "10.1.2.3/16", want: "10.1.0.0/16"},
		{name: "ipv4 address", raw: "192.168.1.10", want: "192.168.1.10/32"},
		{name: "ipv6 address", raw: "::1", want: "::1/128"},
		{name: "mapped address", raw: "::ffff:10.0.0.1", want: "10.0.0.1/32"},
		{name: "garbage", raw: "proxy.local", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseTrustedProxy(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}
