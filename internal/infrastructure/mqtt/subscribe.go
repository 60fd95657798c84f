package mqtt

import (
	"fmt"
)

// Subscribe adds a route for a topic filter and subscribes to it.
//
// Filters may include MQTT wildcards ('+' and '#'). Registering the same
// filter again replaces its handler. Before Connect the route is only
// recorded; it is subscribed once the broker accepts the connection, and
// again after every reconnect.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if !validFilter(topic) {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if c.closed.Load() {
		return ErrClosed
	}

	r := route{filter: topic, qos: qos, handler: handler}

	c.routeMu.Lock()
	c.routes[topic] = r
	c.routeMu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}

	if err := c.subscribe(r); err != nil {
		c.routeMu.Lock()
		delete(c.routes, topic)
		c.routeMu.Unlock()
		return err
	}

	c.state.CompareAndSwap(int32(StateConnected), int32(StateSubscribed))
	return nil
}

// subscribe sends one SUBSCRIBE and waits for the SUBACK.
func (c *Client) subscribe(r route) error {
	// No paho callback: deliveries go through the default handler (dispatch).
	token := c.client.Subscribe(r.filter, r.qos, nil)
	if !token.WaitTimeout(defaultSubscribeTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrSubscribeFailed, ErrTimeout, defaultSubscribeTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	c.logger.Info("subscribed to MQTT topic", "topic", r.filter, "qos", r.qos)
	return nil
}

// lookup returns the handler for a concrete topic, or nil.
// An exact filter match wins over wildcard filters.
func (c *Client) lookup(topic string) MessageHandler {
	c.routeMu.RLock()
	defer c.routeMu.RUnlock()

	if r, ok := c.routes[topic]; ok {
		return r.handler
	}
	for _, r := range c.routes {
		if matchTopic(r.filter, topic) {
			return r.handler
		}
	}
	return nil
}

func (c *Client) snapshotRoutes() []route {
	c.routeMu.RLock()
	defer c.routeMu.RUnlock()

	routes := make([]route, 0, len(c.routes))
	for _, r := range c.routes {
		routes = append(routes, r)
	}
	return routes
}

// SubscriptionCount returns the number of registered routes.
func (c *Client) SubscriptionCount() int {
	c.routeMu.RLock()
	defer c.routeMu.RUnlock()
	return len(c.routes)
}

// HasSubscription checks if a route exists for the exact filter string.
func (c *Client) HasSubscription(topic string) bool {
	c.routeMu.RLock()
	defer c.routeMu.RUnlock()
	_, exists := c.routes[topic]
	return exists
}
