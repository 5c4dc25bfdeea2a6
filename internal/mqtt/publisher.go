package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/Shellwecode/window-to-the-world-app/internal/citylist"
	"github.com/Shellwecode/window-to-the-world-app/internal/weather"
)

// Publisher mirrors committed snapshots onto an MQTT broker so home
// dashboards can follow the same data the widget shows.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	enabled     bool
	logger      *slog.Logger
}

type PublisherConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Enabled     bool
	Logger      *slog.Logger
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return &Publisher{enabled: false, logger: logger}, nil
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "windowworld"
	}
	// Random suffix so a restarted instance does not kick the old session
	// off the broker while it lingers.
	clientID = fmt.Sprintf("%s-%s", clientID, uuid.NewString()[:8])

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(c mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			logger.Info("mqtt connected")
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: cfg.TopicPrefix,
		enabled:     true,
		logger:      logger,
	}, nil
}

// PublishSnapshot pushes one city's weather: a scalar topic per headline
// value plus the whole snapshot as retained JSON.
func (p *Publisher) PublishSnapshot(city citylist.City, snap weather.Snapshot) error {
	if !p.enabled {
		return nil
	}

	values := map[string]interface{}{
		"temperature": snap.Temperature,
		"condition":   snap.Condition,
		"local_time":  snap.LocalTime,
		"is_day":      snap.IsDay,
	}
	for name, value := range values {
		topic := fmt.Sprintf("%s/cities/%s/%s", p.topicPrefix, city.ID, name)
		token := p.client.Publish(topic, 0, false, fmt.Sprintf("%v", value))
		token.Wait()
		if token.Error() != nil {
			p.logger.Warn("mqtt publish failed", "topic", topic, "error", token.Error())
		}
	}

	payload := struct {
		City     citylist.City    `json:"city"`
		Snapshot weather.Snapshot `json:"snapshot"`
	}{City: city, Snapshot: snap}

	statusJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	statusTopic := fmt.Sprintf("%s/cities/%s/weather", p.topicPrefix, city.ID)
	token := p.client.Publish(statusTopic, 0, true, statusJSON)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish snapshot: %w", token.Error())
	}

	return nil
}

// PublishDiscovery announces a Home Assistant sensor pair per saved city.
// Called at startup and whenever the list changes.
func (p *Publisher) PublishDiscovery(cities []citylist.City) error {
	if !p.enabled {
		return nil
	}

	for _, city := range cities {
		sensors := []struct {
			Name        string
			ID          string
			Unit        string
			DeviceClass string
			StateTopic  string
		}{
			{"Temperature", "temperature", "°C", "temperature", "temperature"},
			{"Condition", "condition", "", "", "condition"},
		}

		for _, sensor := range sensors {
			discoveryTopic := fmt.Sprintf("homeassistant/sensor/windowworld_%s/%s/config", city.ID, sensor.ID)

			config := map[string]interface{}{
				"name":        fmt.Sprintf("%s %s", city.Name, sensor.Name),
				"unique_id":   fmt.Sprintf("windowworld_%s_%s", city.ID, sensor.ID),
				"state_topic": fmt.Sprintf("%s/cities/%s/%s", p.topicPrefix, city.ID, sensor.StateTopic),
				"device": map[string]interface{}{
					"identifiers":  []string{"windowworld_" + city.ID},
					"name":         fmt.Sprintf("Window to the World: %s", city.Name),
					"manufacturer": "windowworld",
				},
			}
			if sensor.Unit != "" {
				config["unit_of_measurement"] = sensor.Unit
			}
			if sensor.DeviceClass != "" {
				config["device_class"] = sensor.DeviceClass
			}

			payload, err := json.Marshal(config)
			if err != nil {
				return fmt.Errorf("failed to marshal discovery config: %w", err)
			}
			token := p.client.Publish(discoveryTopic, 0, true, payload)
			token.Wait()
			if token.Error() != nil {
				p.logger.Warn("mqtt discovery publish failed", "topic", discoveryTopic, "error", token.Error())
			}
		}
	}

	return nil
}

func (p *Publisher) IsConnected() bool {
	if !p.enabled {
		return false
	}
	return p.client.IsConnected()
}

func (p *Publisher) Close() {
	if p.enabled && p.client != nil {
		p.client.Disconnect(1000)
	}
}
