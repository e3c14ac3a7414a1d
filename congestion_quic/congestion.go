package congestion_quic

import (
	"context"
	"time"

	"github.com/sagernet/quic-go/congestion"
	"github.com/sagernet/sing-cubic/congestion_cubic"
	"github.com/sagernet/sing-cubic/controller"
	"github.com/sagernet/sing-cubic/qlog"
	E "github.com/sagernet/sing/common/exceptions"
	"github.com/sagernet/sing/common/logger"
)

const (
	NameCubic       = "cubic"
	NameCubicSpread = "cubic_spread"
	NameCubicReno   = "cubic_reno"
)

type Options struct {
	Context  context.Context
	Logger   logger.ContextLogger
	TimeFunc func() time.Time
	// PacketLen is the initial packet size. Zero means the default.
	PacketLen congestion.ByteCount
	Settings  *controller.TransportSettings
	// Config overrides the algorithm defaults. Name specific flags are
	// applied on top of it.
	Config *congestion_cubic.Config
	// QLogger receives the controller's diagnostic records in addition to
	// Logger.
	QLogger qlog.Logger
}

// CongestionControlSetter is implemented by quic.Connection.
type CongestionControlSetter interface {
	SetCongestionControl(congestion.CongestionControl)
}

func NewCongestionControl(congestionName string, options Options) (*Sender, error) {
	config := congestion_cubic.DefaultConfig()
	if options.Config != nil {
		config = *options.Config
	}
	switch congestionName {
	case NameCubic:
	case NameCubicSpread:
		config.PacingSpreadAcrossRTT = true
	case NameCubicReno:
		config.TCPFriendly = true
	default:
		return nil, E.New("unknown congestion control: ", congestionName)
	}
	ctx := options.Context
	if ctx == nil {
		ctx = context.Background()
	}
	conn := controller.NewConnection()
	if options.PacketLen > 0 {
		conn.PacketLen = options.PacketLen
	}
	if options.Settings != nil {
		conn.Settings = *options.Settings
	}
	contextLogger := qlog.NewContextLogger(ctx, options.Logger, congestionName)
	if options.QLogger != nil {
		conn.QLogger = qlog.MultiLogger{contextLogger, options.QLogger}
	} else {
		conn.QLogger = contextLogger
	}
	cubic, err := congestion_cubic.NewCubic(conn, config)
	if err != nil {
		return nil, E.Cause(err, "create ", congestionName)
	}
	return NewSender(ctx, options.Logger, DefaultClock{TimeFunc: options.TimeFunc}, conn, cubic), nil
}

func SetCongestion(connection CongestionControlSetter, congestionName string, options Options) error {
	sender, err := NewCongestionControl(congestionName, options)
	if err != nil {
		return err
	}
	connection.SetCongestionControl(sender)
	return nil
}
