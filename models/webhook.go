package models

type Webhook struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// IsEventWanted reports whether the hook subscribed to the given deployment
// state. An empty Events list means every terminal state is wanted.
func (w *Webhook) IsEventWanted(state DeploymentState) bool {
	if len(w.Events) == 0 {
		return state.Terminal()
	}
	for i := range w.Events {
		if w.Events[i] == string(state) {
			return true
		}
	}
	return false
}
