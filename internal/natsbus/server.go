package natsbus

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/teamclaw/teamclaw/internal/config"
)

const readyTimeout = 5 * time.Second

// Bus is the embedded NATS server shared by the gateway and its workers.
type Bus struct {
	server *natsserver.Server
	cfg    config.NATSConfig
}

// New starts an embedded server. A negative port picks a free one.
// JetStream is only enabled when a data dir is configured.
func New(cfg config.NATSConfig) (*Bus, error) {
	opts := &natsserver.Options{
		Host:   cfg.Host,
		Port:   cfg.Port,
		NoLog:  true,
		NoSigs: true,
	}
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create nats data dir: %w", err)
		}
		opts.JetStream = true
		opts.StoreDir = cfg.DataDir
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, errors.New("nats server not ready")
	}

	return &Bus{
		server: ns,
		cfg:    cfg,
	}, nil
}

func (b *Bus) ClientURL() string {
	return b.server.ClientURL()
}

// Port reports the bound port, which differs from the configured one
// when a random port was requested.
func (b *Bus) Port() int {
	if addr, ok := b.server.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return b.cfg.Port
}

func (b *Bus) Close() {
	b.server.Shutdown()
	b.server.WaitForShutdown()
}
