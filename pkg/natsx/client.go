package natsx

import (
	"github.com/nats-io/nats.go"
)

// ClientName identifies runrelay connections on the NATS server.
const ClientName = "runrelay"

// NewClient connects to the NATS server at url. Without options the
// connection is named ClientName and compression is enabled.
func NewClient(url string, opts ...nats.Option) (*nats.Conn, error) {
	if len(opts) == 0 {
		opts = append(opts, nats.Name(ClientName), nats.Compression(true))
	}
	return nats.Connect(url, opts...)
}
