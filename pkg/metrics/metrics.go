package metrics

import (
	"opendeckmcp/pkg/device"
)

// ClientMetrics exports the counters of device clients. Each client is
// registered under a name used as the metric label.
type ClientMetrics interface {
	Shutdown()

	AddClient(name string, client *device.Client)
	RemoveClient(name string)
}
