// Package influxdb writes diffuser telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 non-blocking write API.
// Points are batched according to batch_size and flush_interval; write
// failures arrive through the SetOnError callback.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePoint("diffuser", tags, fields, time.Now())
package influxdb
