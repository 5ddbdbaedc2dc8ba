package whatsapp

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Session is the bot's single whatsmeow connection.
type Session struct {
	Name      string
	Client    *whatsmeow.Client
	Device    *store.Device
	container *sqlstore.Container
	log       waLog.Logger
}

// OpenSession loads (or creates) the device and builds an unconnected client.
func OpenSession(ctx context.Context, factory *StoreFactory, name string, clientLog, log waLog.Logger) (*Session, error) {
	container, err := factory.NewDeviceStore(ctx, name)
	if err != nil {
		return nil, err
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}
	if log == nil {
		log = waLog.Noop
	}
	s := &Session{
		Name:      name,
		Client:    whatsmeow.NewClient(device, clientLog),
		Device:    device,
		container: container,
		log:       log,
	}
	s.Client.AddEventHandler(s.logState)
	return s, nil
}

func (s *Session) logState(evt any) {
	switch e := evt.(type) {
	case *events.Connected:
		s.log.Infof("session %s connected", s.Name)
	case *events.Disconnected:
		s.log.Warnf("session %s disconnected", s.Name)
	case *events.PairSuccess:
		s.log.Infof("session %s paired: jid=%s platform=%s", s.Name, e.ID.String(), e.Platform)
	case *events.LoggedOut:
		s.log.Warnf("session %s logged out: %s", s.Name, e.Reason.String())
	}
}

func (s *Session) Paired() bool {
	return s.Device != nil && s.Device.ID != nil
}

// AddEventHandler registers an extra handler, typically before Connect.
func (s *Session) AddEventHandler(h func(evt any)) uint32 {
	return s.Client.AddEventHandler(h)
}

// Connect opens the websocket for a paired device and waits for the Connected event.
func (s *Session) Connect(ctx context.Context, timeout time.Duration) error {
	if !s.Paired() {
		return ErrNotPaired
	}
	connected := make(chan struct{}, 1)
	id := s.Client.AddEventHandler(func(evt any) {
		if _, ok := evt.(*events.Connected); ok {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})
	defer s.Client.RemoveEventHandler(id)

	if err := s.Client.Connect(); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-connected:
		return nil
	case <-timer.C:
		return ErrConnectTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Login pairs a new device by printing QR codes to out until one is scanned.
func (s *Session) Login(ctx context.Context, out io.Writer) error {
	if s.Paired() {
		s.log.Infof("session %s already paired as %s", s.Name, s.Device.ID.String())
		return nil
	}
	// The QR channel must exist before Connect, or the first code is lost.
	qrChan, err := s.Client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get QR channel: %w", err)
	}
	if err := s.Client.Connect(); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			if err := PrintQR(out, item.Code); err != nil {
				return err
			}
		case whatsmeow.QRChannelSuccess.Event:
			return nil
		case whatsmeow.QRChannelTimeout.Event:
			return ErrLoginTimeout
		case whatsmeow.QRChannelEventError:
			return fmt.Errorf("pairing failed: %w", item.Error)
		default:
			s.log.Warnf("pairing event %s", item.Event)
		}
	}
	return ctx.Err()
}

func (s *Session) Close() {
	if s.Client != nil {
		s.Client.Disconnect()
	}
	if s.container != nil {
		if err := s.container.Close(); err != nil {
			s.log.Warnf("closing device store: %v", err)
		}
	}
}
