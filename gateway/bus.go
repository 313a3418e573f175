package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/ftahirops/xguard/model"
)

// BusPublisher mirrors admitted alerts onto a NATS subject for other
// consumers (SIEM bridges, paging). Delivery is best effort.
type BusPublisher struct {
	nc      *nats.Conn
	subject string
}

// NewBusPublisher connects to url. The connection keeps retrying in the
// background, so a bus that is down at startup is not fatal.
func NewBusPublisher(url, subject string) (*BusPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("xguard"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &BusPublisher{nc: nc, subject: subject}, nil
}

// Publish sends e without its encoded frame; the evidence path stays.
func (p *BusPublisher) Publish(_ context.Context, e model.AlertEvent) error {
	msg, err := alertMsg(p.subject, e)
	if err != nil {
		return &TransportError{Call: CallPublish, Err: err}
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		return &TransportError{Call: CallPublish, Err: err}
	}
	gatewayCalls.WithLabelValues(CallPublish, "ok").Inc()
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *BusPublisher) Close() {
	_ = p.nc.Drain()
}

func alertMsg(subject string, e model.AlertEvent) (*nats.Msg, error) {
	e.EvidenceEncoded = ""
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, e.ID)
	msg.Header.Set("Xguard-Severity", e.Severity.String())
	return msg, nil
}
