package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gr-butler/ppt/charger"

	logger "github.com/sirupsen/logrus"
)

// MQTTMessage is one outgoing message.
type MQTTMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// MQTTSender wraps the channel feeding mqttSenderWorker.
type MQTTSender struct {
	ch chan<- MQTTMessage
}

func NewMQTTSender(ch chan<- MQTTMessage) *MQTTSender {
	return &MQTTSender{ch: ch}
}

// Send queues msg, dropping it when the worker is backed up.
func (s *MQTTSender) Send(msg MQTTMessage) {
	select {
	case s.ch <- msg:
	default:
		logger.Warnf("MQTT queue full, dropping message to %s", msg.Topic)
	}
}

// PublishTelemetry sends the status as JSON on <prefix>/telemetry.
func (s *MQTTSender) PublishTelemetry(prefix string, st charger.Status) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	s.Send(MQTTMessage{
		Topic:   prefix + "/telemetry",
		Payload: payload,
		QoS:     0,
		Retain:  false,
	})
	return nil
}

// mqttConnect connects to broker and hands every (re)connected client to
// the sender worker.
func mqttConnect(ctx context.Context, broker, username, password string, clientChan chan<- mqtt.Client) mqtt.Client {
	host, _ := os.Hostname()
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(fmt.Sprintf("ppt-%s", host))
	opts.SetUsername(username)
	opts.SetPassword(password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Errorf("MQTT connection lost [%v]", err)
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		logger.Infof("Connected to MQTT broker at %s", broker)
		select {
		case clientChan <- client:
		case <-ctx.Done():
		}
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Errorf("Failed to connect to MQTT broker [%v]", token.Error())
	}
	go func() {
		<-ctx.Done()
		client.Disconnect(250)
	}()
	return client
}

// mqttSenderWorker publishes outgoing messages, queueing them until a
// connected client arrives.
func mqttSenderWorker(ctx context.Context, outgoingChan <-chan MQTTMessage, clientChan <-chan mqtt.Client) {
	logger.Info("MQTT sender worker started")

	var client mqtt.Client
	var messageQueue []MQTTMessage

	publish := func(msg MQTTMessage) {
		token := client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
		token.Wait()
		if token.Error() != nil {
			logger.Errorf("Failed to publish to %s [%v]", msg.Topic, token.Error())
		}
	}

	for {
		select {
		case newClient := <-clientChan:
			client = newClient
			if client != nil && client.IsConnected() {
				for _, msg := range messageQueue {
					publish(msg)
				}
				if len(messageQueue) > 0 {
					logger.Infof("MQTT sender worker processed %d queued messages", len(messageQueue))
				}
				messageQueue = nil
			}

		case msg := <-outgoingChan:
			if client != nil && client.IsConnected() {
				publish(msg)
				continue
			}
			// keep the most recent telemetry only
			if len(messageQueue) >= 100 {
				messageQueue = messageQueue[1:]
			}
			messageQueue = append(messageQueue, msg)
			logger.Debugf("MQTT sender worker queued message (total queued: %d)", len(messageQueue))

		case <-ctx.Done():
			logger.Info("MQTT sender worker stopped")
			return
		}
	}
}
