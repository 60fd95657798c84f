// Package mqtt provides the broker connection for the sensor collector.
//
// This package manages:
//   - A persistent session (clean session off) under a fixed client id
//   - Auto-reconnect, with the routing table re-subscribed on every connect
//   - In-order, one-at-a-time delivery to topic handlers
//   - Connection lifecycle callbacks and state for health reporting
//
// # Delivery
//
// Every subscription is made without a paho callback, so all messages pass
// through one dispatcher that consults the client's routing table. Readings
// the broker queued while the collector was offline can therefore arrive
// immediately after the CONNACK, before the SUBSCRIBE is re-issued, and still
// reach their handler. Messages matching no route go to the SetOnMessage
// callback and are logged at debug level.
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT, logger)
//	err := client.Subscribe(mqtt.SensorDataTopic, 1,
//	    func(ctx context.Context, topic string, payload []byte) error {
//	        return store(ctx, payload)
//	    })
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
package mqtt
