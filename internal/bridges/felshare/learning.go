package felshare

import (
	"bytes"
	"time"
)

// DefaultLearningWindow is how soon after a txd frame a status reply must
// arrive for the txd frame to be taken as the app's sync request.
const DefaultLearningWindow = 2 * time.Second

// syncLearner watches the txd topic for the companion app's proprietary
// status request. A txd frame with an opcode outside the known command set,
// followed within the window by an 0x05 status frame on rxd, becomes the
// learned sync payload. The hub guards it with its own mutex.
type syncLearner struct {
	enabled bool
	window  time.Duration

	lastTXD   []byte
	lastTXDAt time.Time
	payload   []byte
}

// knownCommandOpcodes are frames the hub itself sends; they never qualify.
var knownCommandOpcodes = map[byte]bool{
	OpPower: true, OpFan: true, OpStatus: true, OpOilName: true, OpBulk: true,
	OpConsumption: true, OpCapacity: true, OpRemainOil: true, OpWorkTime: true,
}

func newSyncLearner(enabled bool, window time.Duration) *syncLearner {
	if window <= 0 {
		window = DefaultLearningWindow
	}
	return &syncLearner{enabled: enabled, window: window}
}

// observeTXD remembers the latest txd payload.
func (l *syncLearner) observeTXD(payload []byte, now time.Time) {
	if !l.enabled || len(payload) == 0 {
		return
	}
	l.lastTXD = bytes.Clone(payload)
	l.lastTXDAt = now
}

// observeStatus is called for each rxd status frame. It returns the newly
// learned payload, or nil when nothing changed.
func (l *syncLearner) observeStatus(now time.Time) []byte {
	if !l.enabled || len(l.lastTXD) == 0 {
		return nil
	}
	if now.Sub(l.lastTXDAt) >= l.window {
		return nil
	}
	if knownCommandOpcodes[l.lastTXD[0]] {
		return nil
	}
	if bytes.Equal(l.payload, l.lastTXD) {
		return nil
	}
	l.payload = bytes.Clone(l.lastTXD)
	return bytes.Clone(l.payload)
}

// statusRequest returns the learned payload or the default 0x05 request.
func (l *syncLearner) statusRequest() []byte {
	if len(l.payload) > 0 {
		return bytes.Clone(l.payload)
	}
	return StatusRequestFrame()
}
