package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteLinkEvent records a link lifecycle event for one appliance.
//
// Events are the coordinator's operational transitions: "reachable",
// "unreachable", "poll_down", "poll_up". The write is non-blocking;
// data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteLinkEvent("AB1-CD-EFG2345H", "unreachable")
func (c *Client) WriteLinkEvent(serial string, event string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"link_events",
		map[string]string{
			"serial": serial,
			"event":  event,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteMessage counts one dispatched or published message by kind.
//
// Inbound kinds are recorded as-is; outbound commands carry an "out:"
// prefix so dashboards can separate directions.
//
// Example:
//
//	client.WriteMessage("AB1-CD-EFG2345H", "CURRENT-STATE")
//	client.WriteMessage("AB1-CD-EFG2345H", "out:SET-STATE")
func (c *Client) WriteMessage(serial string, kind string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"link_messages",
		map[string]string{
			"serial": serial,
			"kind":   kind,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
