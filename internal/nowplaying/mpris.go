package nowplaying

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	logx "spotmylyrics/pkg/logx"

	"github.com/godbus/dbus/v5"
)

const (
	mprisPath        = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"
	propertiesGet    = "org.freedesktop.DBus.Properties.Get"
)

// MPRIS reads the player state over the D-Bus session bus. The connection
// is opened lazily and dropped after transport errors.
type MPRIS struct {
	service string
	timeout time.Duration
	log     logx.Logger

	mu   sync.Mutex
	conn *dbus.Conn
}

func NewMPRIS(service string, timeout time.Duration, log logx.Logger) *MPRIS {
	return &MPRIS{service: service, timeout: timeout, log: log}
}

func (m *MPRIS) NowPlaying(ctx context.Context) (string, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	conn, err := m.connect()
	if err != nil {
		return "", err
	}
	obj := conn.Object(m.service, mprisPath)

	status, err := m.property(ctx, obj, "PlaybackStatus")
	if err != nil {
		return "", err
	}
	if s, _ := status.Value().(string); !strings.EqualFold(s, "Playing") {
		return "", ErrNoAnswer
	}

	v, err := m.property(ctx, obj, "Metadata")
	if err != nil {
		return "", err
	}
	metadata, ok := v.Value().(map[string]dbus.Variant)
	if !ok {
		return "", fmt.Errorf("unexpected metadata type %T", v.Value())
	}
	title := extractString(metadata, "xesam:title")
	artist := extractArtist(metadata, "xesam:artist")
	if title == "" || artist == "" {
		// Spotify reports empty metadata while ads play.
		return "", ErrNoAnswer
	}
	return artist + ", " + title, nil
}

func (m *MPRIS) property(ctx context.Context, obj dbus.BusObject, name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := obj.CallWithContext(ctx, propertiesGet, 0, mprisPlayerIface, name).Store(&v)
	if err == nil {
		return v, nil
	}
	var derr dbus.Error
	if errors.As(err, &derr) {
		switch derr.Name {
		case "org.freedesktop.DBus.Error.ServiceUnknown", "org.freedesktop.DBus.Error.NameHasNoOwner":
			return v, ErrNoAnswer
		}
		return v, fmt.Errorf("mpris %s: %w", name, err)
	}
	if ctx.Err() == nil {
		m.reset()
	}
	return v, fmt.Errorf("mpris %s: %w", name, err)
}

func (m *MPRIS) connect() (*dbus.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil && m.conn.Connected() {
		return m.conn, nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	m.log.Debug("session bus connected", logx.String("service", m.service))
	m.conn = conn
	return conn, nil
}

func (m *MPRIS) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

// Close releases the bus connection.
func (m *MPRIS) Close() error {
	m.reset()
	return nil
}

func extractString(metadata map[string]dbus.Variant, key string) string {
	v, ok := metadata[key]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

func extractArtist(metadata map[string]dbus.Variant, key string) string {
	v, ok := metadata[key]
	if !ok {
		return ""
	}
	switch typed := v.Value().(type) {
	case []string:
		if len(typed) > 0 {
			return typed[0]
		}
	case string:
		return typed
	}
	return ""
}
