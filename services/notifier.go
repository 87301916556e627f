package services

// Notifier pushes tournament events to live subscribers. The websocket hub
// implements it.
type Notifier interface {
	Publish(tournamentID int, event string, payload any)
}

type noopNotifier struct{}

func (noopNotifier) Publish(int, string, any) {}
