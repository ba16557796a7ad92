package dashboard

import (
	"sync"
	"time"

	"bessmon/internal/model"
)

const (
	waitingMessage      = "Aguardando a primeira mensagem..."
	statusConnected     = "Conectado ao broker e recebendo dados."
	statusDisconnected  = "Desconectado do broker. Verifique a conexão e o broker."
	statusConnectFailed = "Não foi possível conectar ao broker: "
)

// State is the application state owned by the render loop. HTTP handlers
// only read the last rendered view and the admin action resets the last
// message, so every accessor takes the lock.
type State struct {
	mu          sync.RWMutex
	connected   bool
	status      string
	lastMessage string
	view        View
}

func NewState() *State {
	return &State{
		status:      statusDisconnected,
		lastMessage: waitingMessage,
	}
}

// SetConnected records the outcome of a connect attempt. A nil error means
// the transport is up.
func (s *State) SetConnected(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.connected = false
		s.status = statusConnectFailed + err.Error()
		return
	}
	s.connected = true
	s.status = statusConnected
}

// observeConnection updates the status only when the transport state flips,
// so a connect failure message stays visible while nothing changes.
func (s *State) observeConnection(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if connected == s.connected {
		return
	}
	s.connected = connected
	if connected {
		s.status = statusConnected
	} else {
		s.status = statusDisconnected
	}
}

func (s *State) Connection() (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected, s.status
}

func (s *State) LastMessage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMessage
}

func (s *State) setLastMessage(msg string) {
	s.mu.Lock()
	s.lastMessage = msg
	s.mu.Unlock()
}

func (s *State) ResetLastMessage() {
	s.setLastMessage(waitingMessage)
}

func (s *State) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

func (s *State) setView(v View) {
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
}

// View is one rendered snapshot of the dashboard.
type View struct {
	RenderedAt   time.Time             `json:"rendered_at"`
	Connected    bool                  `json:"connected"`
	Status       string                `json:"status"`
	LastMessage  string                `json:"last_message"`
	Filter       string                `json:"filter"`
	Devices      []string              `json:"devices"`
	Readings     []model.Reading       `json:"readings"`
	Alarms       []model.Alarm         `json:"alarms"`
	Summaries    []model.DeviceSummary `json:"summaries"`
	ReadingCount int                   `json:"reading_count"`
	AlarmCount   int                   `json:"alarm_count"`
}

// Notice tells live subscribers that a new view is ready. Clients fetch
// the rendered view themselves.
type Notice struct {
	RenderedAt   time.Time `json:"rendered_at"`
	Connected    bool      `json:"connected"`
	ReadingCount int       `json:"reading_count"`
	AlarmCount   int       `json:"alarm_count"`
}

// Notice summarizes v for a live update.
func (v View) Notice() Notice {
	return Notice{
		RenderedAt:   v.RenderedAt,
		Connected:    v.Connected,
		ReadingCount: v.ReadingCount,
		AlarmCount:   v.AlarmCount,
	}
}

// Filtered narrows the view to one BESS. An empty id or model.AllDevices
// keeps every row.
func (v View) Filtered(bessID string) View {
	if bessID == "" || bessID == model.AllDevices {
		v.Filter = model.AllDevices
		return v
	}
	v.Filter = bessID
	readings := make([]model.Reading, 0, len(v.Readings))
	for _, r := range v.Readings {
		if r.BessID == bessID {
			readings = append(readings, r)
		}
	}
	alarms := make([]model.Alarm, 0)
	for _, a := range v.Alarms {
		if a.BessID == bessID {
			alarms = append(alarms, a)
		}
	}
	summaries := make([]model.DeviceSummary, 0, 1)
	for _, s := range v.Summaries {
		if s.BessID == bessID {
			summaries = append(summaries, s)
		}
	}
	v.Readings = readings
	v.Alarms = alarms
	v.Summaries = summaries
	return v
}
