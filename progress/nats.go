package progress

import (
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ConnectNATS dials the progress fan-out bus. An empty url returns nil without error.
func ConnectNATS(url string, log *zap.SugaredLogger) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return nats.Connect(url,
		nats.Name("attachguard"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("nats reconnected to %s", nc.ConnectedUrl())
		}),
	)
}
