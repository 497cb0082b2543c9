package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/foxseedlab/signscribe/internal/recognizer"
)

const (
	connectTimeout      = 30 * time.Second
	disconnectQuiesceMs = 250
)

type MQTTOptions struct {
	BrokerURL    string
	ClientID     string
	Username     string
	Password     string
	GestureTopic string
	PoseTopic    string
}

type MQTTFrameSource struct {
	opts MQTTOptions

	mu     sync.Mutex
	client mqtt.Client
}

func NewMQTTFrameSource(opts MQTTOptions) *MQTTFrameSource {
	return &MQTTFrameSource{opts: opts}
}

// Subscribe connects to the broker and feeds decoded frames to handler until ctx is done.
// Subscriptions are renewed on every reconnect since the session is not persisted.
func (s *MQTTFrameSource) Subscribe(ctx context.Context, handler recognizer.FrameHandler) error {
	if handler == nil {
		return errors.New("frame handler is nil")
	}

	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(s.opts.BrokerURL)
	clientOpts.SetClientID(s.opts.ClientID)
	if s.opts.Username != "" {
		clientOpts.SetUsername(s.opts.Username)
		clientOpts.SetPassword(s.opts.Password)
	}
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetCleanSession(true)
	clientOpts.SetConnectRetry(true)
	clientOpts.SetOnConnectHandler(func(c mqtt.Client) {
		slog.Info("connected to recognizer broker", "broker", s.opts.BrokerURL)
		s.subscribeTopics(c, handler)
	})
	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("recognizer broker connection lost", "broker", s.opts.BrokerURL, "error", err)
	})

	client := mqtt.NewClient(clientOpts)
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		// ConnectRetry keeps trying in the background
		slog.Warn("recognizer broker connect is taking long, retrying in background", "broker", s.opts.BrokerURL)
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("connect to recognizer broker: %w", err)
	}

	<-ctx.Done()
	return s.Close()
}

func (s *MQTTFrameSource) subscribeTopics(c mqtt.Client, handler recognizer.FrameHandler) {
	gestureToken := c.Subscribe(s.opts.GestureTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		frame, err := decodeGestureFrame(msg.Payload())
		if err != nil {
			slog.Debug("dropping malformed gesture frame", "topic", msg.Topic(), "error", err)
			return
		}
		handler.OnGestureFrame(frame)
	})
	if gestureToken.Wait() && gestureToken.Error() != nil {
		slog.Error("failed to subscribe to gesture topic", "topic", s.opts.GestureTopic, "error", gestureToken.Error())
	}

	poseToken := c.Subscribe(s.opts.PoseTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		frame, err := decodePoseFrame(msg.Payload())
		if err != nil {
			slog.Debug("dropping malformed pose frame", "topic", msg.Topic(), "error", err)
			return
		}
		handler.OnPoseFrame(frame)
	})
	if poseToken.Wait() && poseToken.Error() != nil {
		slog.Error("failed to subscribe to pose topic", "topic", s.opts.PoseTopic, "error", poseToken.Error())
	}
}

func (s *MQTTFrameSource) Close() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client == nil {
		return nil
	}
	if client.IsConnected() {
		client.Disconnect(disconnectQuiesceMs)
	}
	return nil
}

func decodeGestureFrame(payload []byte) (recognizer.GestureFrame, error) {
	var frame recognizer.GestureFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return recognizer.GestureFrame{}, err
	}
	return frame, nil
}

type wireFace struct {
	Box       recognizer.BoundingBox `json:"box"`
	Keypoints json.RawMessage        `json:"keypoints"`
}

type wirePoseFrame struct {
	Hands [][]recognizer.Point `json:"hands"`
	Face  *wireFace            `json:"face"`
}

// decodePoseFrame accepts face keypoints either in model order or keyed by name.
// A face whose keypoints cannot be placed is dropped from the frame.
func decodePoseFrame(payload []byte) (recognizer.PoseFrame, error) {
	var raw wirePoseFrame
	if err := json.Unmarshal(payload, &raw); err != nil {
		return recognizer.PoseFrame{}, err
	}
	frame := recognizer.PoseFrame{Hands: raw.Hands}
	if raw.Face == nil {
		return frame, nil
	}
	keypoints, err := decodeFaceKeypoints(raw.Face.Keypoints)
	if err != nil {
		slog.Debug("ignoring face with unusable keypoints", "error", err)
		return frame, nil
	}
	frame.Face = &recognizer.Face{Box: raw.Face.Box, Keypoints: keypoints}
	return frame, nil
}

func decodeFaceKeypoints(raw json.RawMessage) ([]recognizer.Point, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var ordered []recognizer.Point
		if err := json.Unmarshal(trimmed, &ordered); err != nil {
			return nil, err
		}
		return ordered, nil
	}

	var named map[string]recognizer.Point
	if err := json.Unmarshal(trimmed, &named); err != nil {
		return nil, err
	}
	placed := make(map[recognizer.FaceKeypoint]recognizer.Point, len(named))
	highest := recognizer.FaceKeypoint(-1)
	for name, p := range named {
		k, ok := recognizer.ParseFaceKeypoint(name)
		if !ok {
			continue
		}
		placed[k] = p
		highest = max(highest, k)
	}
	out := make([]recognizer.Point, 0, int(highest)+1)
	for k := recognizer.FaceKeypoint(0); k <= highest; k++ {
		p, ok := placed[k]
		if !ok {
			return nil, fmt.Errorf("face keypoint %d is missing", k)
		}
		out = append(out, p)
	}
	return out, nil
}
