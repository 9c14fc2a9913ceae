package manager

import "fmt"

// defaultPrefix namespaces every key this manager touches in the shared
// store, so a task queue can share a Redis instance with other subsystems.
const defaultPrefix = "taskqueue:tasks"

const defaultChannel = "default"

func (m *Manager) taskKey(id string) string {
	return fmt.Sprintf("%s:t:%s", m.prefix, id)
}

func (m *Manager) pendingKey(channel string) string {
	return fmt.Sprintf("%s:p:%s", m.prefix, channel)
}

func (m *Manager) runningKey(channel string) string {
	return fmt.Sprintf("%s:r:%s", m.prefix, channel)
}

func (m *Manager) completedKey(channel string) string {
	return fmt.Sprintf("%s:d:%s", m.prefix, channel)
}

func (m *Manager) errorKey(channel string) string {
	return fmt.Sprintf("%s:e:%s", m.prefix, channel)
}

func (m *Manager) channelTopic(channel string) string {
	return fmt.Sprintf("%s:c:%s", m.prefix, channel)
}

func (m *Manager) runnerTopic(hostname string) string {
	return fmt.Sprintf("%s:c:runner_%s", m.prefix, hostname)
}

func (m *Manager) broadcastTopic() string {
	return fmt.Sprintf("%s:c:broadcast", m.prefix)
}

func (m *Manager) channelsSetKey() string {
	return fmt.Sprintf("%s:channels", m.prefix)
}

func (m *Manager) runnersHashKey() string {
	return fmt.Sprintf("%s:runners", m.prefix)
}

func (m *Manager) listKeyFor(status listKind, channel string) string {
	switch status {
	case listPending:
		return m.pendingKey(channel)
	case listRunning:
		return m.runningKey(channel)
	case listCompleted:
		return m.completedKey(channel)
	case listError:
		return m.errorKey(channel)
	default:
		return ""
	}
}

type listKind int

const (
	listPending listKind = iota
	listRunning
	listCompleted
	listError
)

var allListKinds = [4]listKind{listPending, listRunning, listCompleted, listError}
