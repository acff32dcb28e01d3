// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/vesclink/pkg/vesc"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	bridgeBroker      string
	bridgeTopicPrefix string
	bridgeClientID    string
	bridgeQoS         int
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Bridge telemetry and commands to an MQTT broker",
	Long: `Publish telemetry to an MQTT broker and accept motor commands from it.

Topics (under --topic-prefix):
  <prefix>/telemetry  JSON snapshot: set fields by name plus "timestamp" (unix ms)
  <prefix>/command    JSON command: {"mode": "current", "value": 2.5}
  <prefix>/status     "online" while bridging, "offline" (retained will) otherwise

Commands must be republished faster than the idle-zero timeout. When they
stop arriving the output is driven back to zero.

The broker defaults to the VESCLINK_MQTT_BROKER environment variable.

Supports both serial and WebSocket connections.`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().StringVar(&bridgeBroker, "broker", os.Getenv("VESCLINK_MQTT_BROKER"), "MQTT broker URL (e.g. tcp://localhost:1883)")
	bridgeCmd.Flags().StringVar(&bridgeTopicPrefix, "topic-prefix", "ugv/motor/vesc", "Topic prefix")
	bridgeCmd.Flags().StringVar(&bridgeClientID, "client-id", "vesclink", "MQTT client ID")
	bridgeCmd.Flags().IntVar(&bridgeQoS, "qos", 0, "MQTT QoS for published and subscribed topics (0-2)")
}

// remoteCommand is the JSON body accepted on the command topic
type remoteCommand struct {
	Mode  string   `json:"mode"`
	Value *float64 `json:"value"`
}

// parseRemoteCommand decodes a command topic payload
func parseRemoteCommand(payload []byte) (vesc.Mode, float64, error) {
	var rc remoteCommand
	if err := json.Unmarshal(payload, &rc); err != nil {
		return vesc.ModeCurrent, 0, fmt.Errorf("invalid command: %w", err)
	}
	if rc.Value == nil {
		return vesc.ModeCurrent, 0, errors.New("invalid command: missing value")
	}
	if math.IsNaN(*rc.Value) || math.IsInf(*rc.Value, 0) {
		return vesc.ModeCurrent, 0, errors.New("invalid command: value must be finite")
	}
	mode, err := vesc.ParseMode(rc.Mode)
	if err != nil {
		return vesc.ModeCurrent, 0, err
	}
	return mode, *rc.Value, nil
}

// telemetryJSON encodes the set fields of a snapshot for the telemetry topic
func telemetryJSON(t *vesc.Telemetry) ([]byte, error) {
	body := make(map[string]interface{}, t.SetCount()+1)
	for name, v := range t.Fields() {
		body[name] = v
	}
	body["timestamp"] = t.Timestamp.UnixMilli()
	return json.Marshal(body)
}

// mqttBridge joins a link to an MQTT client
type mqttBridge struct {
	link   *vesc.Link
	logger *zap.SugaredLogger
	prefix string
	qos    byte
	client mqtt.Client
}

func (b *mqttBridge) topic(name string) string {
	return b.prefix + "/" + name
}

func (b *mqttBridge) setupClient(broker, clientID string) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetWill(b.topic("status"), "offline", b.qos, true)
	opts.OnConnect = func(client mqtt.Client) {
		b.logger.Infow("connected to MQTT broker", "broker", broker)
		client.Publish(b.topic("status"), b.qos, true, "online")
		token := client.Subscribe(b.topic("command"), b.qos, b.handleCommand)
		if token.Wait() && token.Error() != nil {
			b.logger.Errorw("subscribe failed", "topic", b.topic("command"), "error", token.Error())
			return
		}
		b.logger.Infow("subscribed", "topic", b.topic("command"))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		b.logger.Warnw("MQTT connection lost", "error", err)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	b.client = mqtt.NewClient(opts)
}

func (b *mqttBridge) handleCommand(client mqtt.Client, msg mqtt.Message) {
	mode, value, err := parseRemoteCommand(msg.Payload())
	if err != nil {
		b.logger.Warnw("rejected command", "payload", string(msg.Payload()), "error", err)
		return
	}
	if mode != b.link.Mode() {
		b.link.SetMode(mode)
		b.logger.Infow("mode changed", "mode", mode.String())
	}
	b.link.SetTarget(value)
	b.logger.Debugw("command", "mode", mode.String(), "value", value)
}

func (b *mqttBridge) publishTelemetry(t vesc.Telemetry) {
	body, err := telemetryJSON(&t)
	if err != nil {
		b.logger.Errorw("failed to encode telemetry", "error", err)
		return
	}
	b.client.Publish(b.topic("telemetry"), b.qos, false, body)
}

func runBridge(cmd *cobra.Command, args []string) error {
	if bridgeBroker == "" {
		return errors.New("no broker given: use --broker or set VESCLINK_MQTT_BROKER")
	}
	if bridgeQoS < 0 || bridgeQoS > 2 {
		return fmt.Errorf("invalid QoS %d (use 0, 1 or 2)", bridgeQoS)
	}

	s, err := newSession(false)
	if err != nil {
		return err
	}
	defer s.close()

	b := &mqttBridge{
		link:   s.link,
		logger: s.logger,
		prefix: bridgeTopicPrefix,
		qos:    byte(bridgeQoS),
	}
	b.setupClient(bridgeBroker, bridgeClientID)

	s.link.OnTelemetry(b.publishTelemetry)
	lost := s.waitForDisconnect()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := s.connect(ctx); err != nil {
		return err
	}

	// With connect retry enabled the token completes once the first attempt
	// is made; later attempts continue in the background
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect: %w", token.Error())
	}
	defer b.client.Disconnect(250)

	fmt.Printf("Bridging %s to %s (prefix %s, Ctrl+C to stop)...\n", s.info, bridgeBroker, bridgeTopicPrefix)

	ticker := time.NewTicker(driveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.client.Publish(b.topic("status"), b.qos, true, "offline").Wait()
			return nil
		case <-lost:
			b.client.Publish(b.topic("status"), b.qos, true, "offline").Wait()
			return errors.New("connection lost")
		case now := <-ticker.C:
			// Send failures are logged by the link
			s.link.Tick(now)
		}
	}
}
