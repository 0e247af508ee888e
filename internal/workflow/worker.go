package workflow

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"
)

// Register adds every workflow and activity to r under its public name.
func Register(r worker.Registry, acts *Activities) {
	r.RegisterWorkflowWithOptions(DiscoveryWorkflow, workflow.RegisterOptions{Name: DiscoveryWorkflowName})
	r.RegisterWorkflowWithOptions(ImportWorkflow, workflow.RegisterOptions{Name: ImportWorkflowName})

	r.RegisterActivityWithOptions(acts.CreateCampaign, activity.RegisterOptions{Name: ActivityCreateCampaign})
	r.RegisterActivityWithOptions(acts.DiscoverCandidates, activity.RegisterOptions{Name: ActivityDiscoverCandidates})
	r.RegisterActivityWithOptions(acts.NotifyOwner, activity.RegisterOptions{Name: ActivityNotifyOwner})
	r.RegisterActivityWithOptions(acts.ProcessImportBatch, activity.RegisterOptions{Name: ActivityProcessImportBatch})
}

// ZapLogger adapts a zap logger to the Temporal SDK logger.
type ZapLogger struct {
	l *zap.SugaredLogger
}

var (
	_ log.Logger     = (*ZapLogger)(nil)
	_ log.WithLogger = (*ZapLogger)(nil)
)

// NewZapLogger wraps l.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{l: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (z *ZapLogger) Debug(msg string, keyvals ...interface{}) { z.l.Debugw(msg, keyvals...) }
func (z *ZapLogger) Info(msg string, keyvals ...interface{})  { z.l.Infow(msg, keyvals...) }
func (z *ZapLogger) Warn(msg string, keyvals ...interface{})  { z.l.Warnw(msg, keyvals...) }
func (z *ZapLogger) Error(msg string, keyvals ...interface{}) { z.l.Errorw(msg, keyvals...) }

// With returns a logger carrying keyvals on every entry.
func (z *ZapLogger) With(keyvals ...interface{}) log.Logger {
	return &ZapLogger{l: z.l.With(keyvals...)}
}
