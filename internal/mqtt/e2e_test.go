//go:build e2e

// ABOUTME: End-to-end MQTT round trip against a real mosquitto broker
// ABOUTME: Publishes a station batch and waits for the readings to be stored

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/2389/weather-gateway/internal/store"
)

func startMosquitto(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "eclipse-mosquitto:2",
			Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
			ExposedPorts: []string{"1883/tcp"},
			WaitingFor:   wait.ForListeningPort("1883/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "1883/tcp")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

func TestE2E_StationBatchRoundTrip(t *testing.T) {
	broker := startMosquitto(t)
	h, st, token := setupHandler(t, nil)

	sub, err := NewSubscriber(Config{
		Broker:   broker,
		ClientID: "weather-gateway-e2e",
		Topic:    "stations/+/readings",
	}, h.HandleMessage, nil)
	require.NoError(t, err)
	t.Cleanup(sub.Disconnect)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, sub.Connect(ctx))

	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("station-e2e")
	pub := paho.NewClient(opts)
	ct := pub.Connect()
	require.True(t, ct.WaitTimeout(5*time.Second))
	require.NoError(t, ct.Error())
	t.Cleanup(func() { pub.Disconnect(250) })

	ts := time.Date(2021, 5, 7, 2, 0, 0, 0, time.UTC)
	data, err := json.Marshal(Message{
		DeviceName:        "Woodford_Sensor",
		AuthenticationKey: token,
		Readings: []ReadingEntry{
			{Time: ts, Temperature: 18},
			{Time: ts.Add(time.Hour), Temperature: 61},
		},
	})
	require.NoError(t, err)

	// The subscription is made in the connect callback; retry until it lands.
	require.Eventually(t, func() bool {
		pt := pub.Publish("stations/woodford/readings", 1, false, data)
		pt.WaitTimeout(2 * time.Second)
		n, err := st.CountReadings(context.Background())
		return err == nil && n > 0
	}, 15*time.Second, 500*time.Millisecond)

	snap, err := st.ReadingAtHour(context.Background(), "Woodford_Sensor", ts)
	require.NoError(t, err)
	require.Equal(t, 18.0, snap.Temperature)

	_, err = st.ReadingAtHour(context.Background(), "Woodford_Sensor", ts.Add(time.Hour))
	require.ErrorIs(t, err, store.ErrNotFound)
}
