// Package errorlog appends reconciliation and delivery failures to the
// errors table for later inspection.
package errorlog

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/coursepay/internal/apperror"
	"github.com/smallbiznis/coursepay/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxStackBytes = 8 << 10

type Entry struct {
	ID        snowflake.ID `gorm:"column:id;primaryKey;autoIncrement:false"`
	Type      string       `gorm:"column:type"`
	Context   string       `gorm:"column:context;index"`
	Error     string       `gorm:"column:error"`
	Stack     string       `gorm:"column:stack"`
	Timestamp time.Time    `gorm:"column:timestamp"`
}

func (Entry) TableName() string { return "errors" }

// Recorder never fails its caller; write errors are only logged.
type Recorder interface {
	Record(ctx context.Context, errType, contextID string, err error)
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Log struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) Recorder {
	return &Log{
		db:    p.DB,
		log:   p.Log.Named("errorlog"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (l *Log) Record(ctx context.Context, errType, contextID string, err error) {
	if err == nil {
		return
	}
	entry := Entry{
		ID:        l.genID.Generate(),
		Type:      strings.TrimSpace(errType),
		Context:   strings.TrimSpace(contextID),
		Error:     err.Error(),
		Stack:     stack(),
		Timestamp: l.clock.Now(),
	}
	l.log.Warn("recording error",
		zap.String("type", entry.Type),
		zap.String("context", entry.Context),
		zap.Error(err),
	)

	// Record runs after a request may have been cancelled; the entry must
	// still be written.
	writeCtx := context.WithoutCancel(ctx)
	if werr := l.db.WithContext(writeCtx).Create(&entry).Error; werr != nil {
		l.log.Error("failed to write error log entry", zap.Error(werr), zap.NamedError("original", err))
	}
}

// TypeOf derives the stored type from the error taxonomy.
func TypeOf(err error) string {
	var (
		validation     *apperror.ValidationError
		gateway        *apperror.GatewayError
		reconciliation *apperror.ReconciliationError
		transport      *apperror.TransportError
		signature      *apperror.SignatureError
	)
	switch {
	case errors.As(err, &reconciliation):
		return "reconciliation:" + reconciliation.Step
	case errors.As(err, &transport):
		return "transport:" + transport.Op
	case errors.As(err, &gateway):
		return "gateway"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &signature):
		return "signature"
	default:
		return "internal"
	}
}

func stack() string {
	raw := debug.Stack()
	if len(raw) > maxStackBytes {
		raw = raw[:maxStackBytes]
	}
	return string(raw)
}

// NewIDNode builds the snowflake node used for error entry ids.
func NewIDNode() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	return node, nil
}

var Module = fx.Module("errorlog",
	fx.Provide(NewIDNode),
	fx.Provide(New),
)
