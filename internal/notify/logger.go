package notify

import "importer/internal/infra"

// LogObserver bridges bus events into the structured logger so embedding
// applications get a ready-made logging sink without writing an Observer.
func LogObserver(logger *infra.Logger) Observer {
	return ObserverFunc(func(e Event) {
		evt := logger.Info()
		switch e.Code {
		case StatusError, StatusDonationFailed, StatusDuplicateProfile:
			evt = logger.Error()
		case StatusInProgress, StatusRead:
			evt = logger.Debug()
		}
		if e.Err != nil {
			evt = evt.Err(e.Err)
		}
		evt.
			Str("run_id", e.RunID.String()).
			Str("source", e.Source).
			Int("code", int(e.Code)).
			Msg(e.Message)
	})
}
