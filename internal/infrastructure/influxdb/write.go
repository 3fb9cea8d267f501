package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint queues one point. It is a no-op after Close.
//
// Example:
//
//	client.WritePoint("diffuser",
//	    map[string]string{"device_id": "FS0001"},
//	    map[string]any{"remain_oil_ml": 120},
//	    time.Now())
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
