package conversation

import (
	"fmt"

	"github.com/opsdesk/teamchat/internal/client"
	"github.com/opsdesk/teamchat/internal/querycache"
	"github.com/opsdesk/teamchat/internal/session"
)

// Conn bundles a View with the REST client and session gate it runs on.
type Conn struct {
	API  *client.Client
	Gate *session.Gate
	View *View
}

// Dial wires a logged-out View to the chat API at baseURL. Requests carry
// the gate's current token, so logging in or out through Gate takes effect
// on the next request.
func Dial(baseURL string, cfg Config, clientOpts ...client.Option) (*Conn, error) {
	conn := &Conn{}
	tokens := client.TokenFunc(func() string { return conn.Gate.Token() })

	api, err := client.New(baseURL, append(clientOpts, client.WithTokenSource(tokens))...)
	if err != nil {
		return nil, fmt.Errorf("conversation: dial: %w", err)
	}
	conn.API = api
	conn.Gate = session.NewGate(api, querycache.New())
	conn.View = New(api, conn.Gate, cfg)
	return conn, nil
}
