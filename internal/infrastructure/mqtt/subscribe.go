package mqtt

import (
	"fmt"

	"github.com/nerrad567/felshare-bridge/internal/bridges/felshare"
)

// Subscribe registers handler for topic. Handlers run on paho's delivery
// goroutine; a panicking handler is recovered and logged.
//
// Subscriptions are not restored: a dropped session is replaced by a new
// one, which subscribes again.
func (c *Client) Subscribe(topic string, handler felshare.MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}
