// Package bridge runs a QR-paired WhatsApp session over whatsmeow and
// feeds its events into message ingestion. It owns the device store,
// the pairing flow, and the translation from client events to the
// transport-neutral shapes the service layer consumes.
package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	"whatscrm/internal/metrics"
	"whatscrm/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

const defaultLogLevel = "INFO"

// Ingestor receives normalized bridge traffic. The ingest service
// implements it.
type Ingestor interface {
	HandleBridgeMessage(ctx context.Context, numberID string, msg models.BridgeMessage, mode models.IngestMode) error
	HandleBridgeReceipt(ctx context.Context, numberID string, receipt models.BridgeReceipt) error
}

// Config carries the settings for one bridged number.
type Config struct {
	// NumberID is the connection identifier events are ingested under.
	NumberID string
	// StorePath is the SQLite file holding the whatsmeow device state.
	StorePath string
	// HistorySync archives the conversation history the provider sends
	// after pairing. When false those payloads are dropped.
	HistorySync bool
	// LogLevel controls the underlying client's logger (DEBUG..ERROR).
	LogLevel string
}

// Bridge is one running QR session. Create with New, then Start to
// connect; an unpaired store triggers the QR login flow and the pairing
// code is written to the log.
type Bridge struct {
	cfg       Config
	ingestor  Ingestor
	logger    *logrus.Logger
	onPaired  func(numberID, displayName string)
	container *sqlstore.Container
	client    *whatsmeow.Client
	handlerID uint32
}

// New creates a bridge for one number. The bridge does not touch the
// device store until Start.
func New(cfg Config, ingestor Ingestor, logger *logrus.Logger) *Bridge {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	return &Bridge{
		cfg:      cfg,
		ingestor: ingestor,
		logger:   logger,
	}
}

// OnPaired registers a callback invoked after a successful QR pairing,
// with the bridge's number id and the paired account's display name.
func (b *Bridge) OnPaired(fn func(numberID, displayName string)) {
	b.onPaired = fn
}

// Start opens the device store and connects the client. When the store
// holds no paired device, the QR channel is drained in the background
// and each pairing code is logged until the user scans one or the
// channel times out.
func (b *Bridge) Start(ctx context.Context) error {
	if b.cfg.NumberID == "" {
		return fmt.Errorf("bridge number id is required")
	}
	if b.cfg.StorePath == "" {
		return fmt.Errorf("bridge store path is required")
	}

	container, err := sqlstore.New(ctx, "sqlite3", "file:"+b.cfg.StorePath+"?_foreign_keys=on", waLog.Stdout("bridge-db", b.cfg.LogLevel, true))
	if err != nil {
		return fmt.Errorf("failed to open device store: %w", err)
	}
	b.container = container

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("failed to load device: %w", err)
	}
	if device == nil {
		device = container.NewDevice()
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("bridge", b.cfg.LogLevel, true))
	client.EnableAutoReconnect = true
	client.AutoTrustIdentity = true
	b.client = client
	b.handlerID = client.AddEventHandler(func(rawEvt interface{}) {
		b.handleEvent(ctx, rawEvt)
	})

	if client.Store.ID == nil {
		qrCh, err := client.GetQRChannel(ctx)
		if err != nil {
			// Already-paired stores reject the QR channel; anything
			// else is fatal.
			if !errors.Is(err, whatsmeow.ErrQRStoreContainsID) {
				return fmt.Errorf("failed to open QR channel: %w", err)
			}
		} else {
			go b.logQRCodes(qrCh)
		}
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	b.logger.WithFields(logrus.Fields{
		"number_id": b.cfg.NumberID,
		"logged_in": client.IsLoggedIn(),
	}).Info("Bridge started")
	return nil
}

func (b *Bridge) logQRCodes(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		if item.Event == "code" {
			b.logger.WithFields(logrus.Fields{
				"number_id": b.cfg.NumberID,
				"code":      item.Code,
				"timeout":   item.Timeout,
			}).Info("Scan QR code to pair this number")
			continue
		}
		b.logger.WithFields(logrus.Fields{
			"number_id": b.cfg.NumberID,
			"event":     item.Event,
		}).Info("QR login channel closed")
	}
}

// Stop detaches the event handler, disconnects the client, and closes
// the device store. The bridge cannot be restarted afterwards.
func (b *Bridge) Stop() {
	if b.client != nil {
		if b.handlerID != 0 {
			b.client.RemoveEventHandler(b.handlerID)
			b.handlerID = 0
		}
		b.client.Disconnect()
	}
	if b.container != nil {
		if err := b.container.Close(); err != nil {
			b.logger.WithError(err).Warn("Failed to close bridge device store")
		}
		b.container = nil
	}
	metrics.SetGauge("bridge_connected", 0, map[string]string{"number_id": b.cfg.NumberID}, "Bridge session connection state")
	b.logger.WithField("number_id", b.cfg.NumberID).Info("Bridge stopped")
}

// Connected reports whether the websocket to WhatsApp is up.
func (b *Bridge) Connected() bool {
	return b.client != nil && b.client.IsConnected()
}

// LoggedIn reports whether the session is paired and authenticated.
func (b *Bridge) LoggedIn() bool {
	return b.client != nil && b.client.IsLoggedIn()
}
