// Package hardware ingests kiosk events from the MQTT broker.
package hardware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"chargeshare-backend/internal/config"
	"chargeshare-backend/internal/domain"
	"chargeshare-backend/internal/logger"
)

// Event types published by kiosks.
const (
	EventDocked  = "DOCKED"
	EventBattery = "BATTERY"
	EventFault   = "FAULT"
)

const (
	connectTimeout = 10 * time.Second
	handleTimeout  = 15 * time.Second
	quiesceMillis  = 250
)

// EventHandler receives decoded kiosk events.
type EventHandler interface {
	HandleDocked(ctx context.Context, kioskSerial string, slotNumber int, deviceSerial string, batteryLevel int) error
	HandleBattery(ctx context.Context, kioskSerial string, slotNumber, batteryLevel int) error
	HandleFault(ctx context.Context, kioskSerial string, slotNumber int, reason string) error
}

// Event is the JSON body of a kiosk message. The kiosk serial comes from the
// topic, kiosks/{serial}/events.
type Event struct {
	Type    string `json:"type"`
	Slot    int    `json:"slot"`
	Device  string `json:"device,omitempty"`
	Battery int    `json:"battery,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Subscriber keeps an MQTT subscription open and dispatches events.
type Subscriber struct {
	client  mqtt.Client
	handler EventHandler
	topic   string
	qos     byte
}

// NewSubscriber builds a client for cfg. Nothing connects until Start.
func NewSubscriber(cfg config.MQTTConfig, handler EventHandler) *Subscriber {
	s := &Subscriber{handler: handler, topic: cfg.Topic, qos: cfg.QoS}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetCleanSession(false).
		SetOrderMatters(false).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("MQTT connection lost", "broker", cfg.Broker, "error", err)
		})
	s.client = mqtt.NewClient(opts)
	return s
}

// Start connects to the broker. The subscription is (re)made on every
// successful connect.
func (s *Subscriber) Start() error {
	logger.ExternalServiceCall("mqtt", "connect", "topic", s.topic)
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		err := fmt.Errorf("mqtt connect timed out after %s", connectTimeout)
		logger.ExternalServiceResult("mqtt", "connect", err)
		return err
	}
	if err := token.Error(); err != nil {
		logger.ExternalServiceResult("mqtt", "connect", err)
		return fmt.Errorf("mqtt connect: %w", err)
	}
	logger.ExternalServiceResult("mqtt", "connect", nil)
	return nil
}

// Stop disconnects, letting in-flight work finish.
func (s *Subscriber) Stop() {
	s.client.Disconnect(quiesceMillis)
	logger.Info("MQTT subscriber stopped")
}

func (s *Subscriber) onConnect(c mqtt.Client) {
	token := c.Subscribe(s.topic, s.qos, s.handleMessage)
	if token.WaitTimeout(connectTimeout) && token.Error() == nil {
		logger.Info("Subscribed to kiosk events", "topic", s.topic, "qos", s.qos)
		return
	}
	logger.Error("Failed to subscribe to kiosk events", "topic", s.topic, "error", token.Error())
}

func (s *Subscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	err := s.Dispatch(ctx, msg.Topic(), msg.Payload())
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound):
		// redelivery cannot fix these
		logger.Warn("Dropping kiosk event", "topic", msg.Topic(), "duplicate", msg.Duplicate(), "error", err)
	default:
		logger.Error("Failed to handle kiosk event", "topic", msg.Topic(), "error", err)
	}
}

// Dispatch decodes one message and routes it to the handler.
func (s *Subscriber) Dispatch(ctx context.Context, topic string, payload []byte) error {
	serial, err := KioskSerial(topic)
	if err != nil {
		return err
	}
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.NewValidationError("malformed kiosk event: %v", err)
	}
	return Route(ctx, s.handler, serial, ev)
}

// Route validates ev and hands it to the matching handler method.
func Route(ctx context.Context, h EventHandler, kioskSerial string, ev Event) error {
	if ev.Slot <= 0 {
		return domain.NewValidationError("kiosk event without a slot")
	}

	logger.Debug("Kiosk event", "kiosk", kioskSerial, "type", ev.Type, "slot", ev.Slot)
	switch strings.ToUpper(ev.Type) {
	case EventDocked:
		if ev.Device == "" {
			return domain.NewValidationError("docked event without a device")
		}
		return h.HandleDocked(ctx, kioskSerial, ev.Slot, ev.Device, ev.Battery)
	case EventBattery:
		return h.HandleBattery(ctx, kioskSerial, ev.Slot, ev.Battery)
	case EventFault:
		return h.HandleFault(ctx, kioskSerial, ev.Slot, ev.Reason)
	default:
		return domain.NewValidationError("unknown kiosk event type %q", ev.Type)
	}
}

// KioskSerial extracts the serial from kiosks/{serial}/events.
func KioskSerial(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "kiosks" || parts[2] != "events" || parts[1] == "" {
		return "", domain.NewValidationError("unexpected topic %q", topic)
	}
	return parts[1], nil
}
