package discovery

import (
	"log/slog"
	"time"
)

// LogObserver writes one structured line per transition.
func LogObserver(logger *slog.Logger) Observer {
	return ObserverFunc(func(e Event) {
		attrs := []any{
			"session_id", e.SessionID,
			"requester_id", string(e.RequesterID),
			"generation", e.Generation,
			"state", string(e.State),
		}
		switch e.Type {
		case EventTriggered:
			attrs = append(attrs, "intensity", e.Intensity)
		case EventCompleted:
			attrs = append(attrs, "results", len(e.Results), "elapsed", e.Elapsed)
			if e.Location != nil && e.Location.Degraded {
				attrs = append(attrs, "degraded", true)
			}
		case EventFailed:
			logger.Warn("discovery failed", append(attrs, "kind", string(KindOf(e.Err)), "error", e.Err)...)
			return
		}
		logger.Info("discovery "+string(e.Type), attrs...)
	})
}

// Recorder is the metrics sink fed by MetricsObserver.
type Recorder interface {
	SessionActivated()
	SessionTriggered(intensity float64)
	SessionCompleted(results int, degraded bool, elapsed time.Duration)
	SessionFailed(kind string, elapsed time.Duration)
	SessionCancelled()
}

func MetricsObserver(r Recorder) Observer {
	return ObserverFunc(func(e Event) {
		switch e.Type {
		case EventListening:
			r.SessionActivated()
		case EventTriggered:
			r.SessionTriggered(e.Intensity)
		case EventCompleted:
			r.SessionCompleted(len(e.Results), e.Location != nil && e.Location.Degraded, e.Elapsed)
		case EventFailed:
			r.SessionFailed(string(KindOf(e.Err)), e.Elapsed)
		case EventCancelled:
			r.SessionCancelled()
		}
	})
}
