package devices

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.mqtt.golang"
)

// Topics of one heater below the configured prefix.
type Topics struct {
	Device string
	State  string
	Online string
	Set    string
}

func TopicsFor(prefix, name string) Topics {
	base := fmt.Sprintf("%s/%s", prefix, name)
	return Topics{
		Device: base + "/device",
		State:  base + "/state",
		Online: base + "/online",
		Set:    base + "/set",
	}
}

// FetchRecord waits for the retained cloud device record on topic. It gives
// up when ctx is done.
func FetchRecord(ctx context.Context, client mqtt.Client, topic string) (map[string]any, error) {
	payloads := make(chan []byte, 1)
	token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		msg.Ack()
		log.Debugf("MQTT received %d bytes from %s", len(msg.Payload()), msg.Topic())
		select {
		case payloads <- msg.Payload():
		default:
		}
	})
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	defer client.Unsubscribe(topic)

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("no device record on %s: %w", topic, ctx.Err())
	case payload := <-payloads:
		var record map[string]any
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("decode device record: %w", err)
		}
		if record == nil {
			return nil, fmt.Errorf("device record on %s is empty", topic)
		}
		return record, nil
	}
}
