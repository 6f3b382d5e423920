package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mediaDownloader/internal/models"
)

const writeWait = 10 * time.Second

// subscriber owns one websocket. Snapshots are queued without blocking and a
// dedicated writer goroutine sends the newest one; intermediate snapshots may be
// skipped, older ones never overtake newer ones.
type subscriber struct {
	write func(models.Snapshot) error
	close func() error

	mu      sync.Mutex
	latest  models.Snapshot
	pending bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newSubscriber(write func(models.Snapshot) error, closeFn func() error) *subscriber {
	return &subscriber{
		write: write,
		close: closeFn,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func newWSSubscriber(conn *websocket.Conn) *subscriber {
	return newSubscriber(func(snap models.Snapshot) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(snap)
	}, conn.Close)
}

// enqueue never blocks.
func (s *subscriber) enqueue(snap models.Snapshot) {
	s.mu.Lock()
	if snap.Version < s.latest.Version {
		s.mu.Unlock()
		return
	}
	s.latest = snap
	s.pending = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run writes queued snapshots until stop is called or a write fails.
func (s *subscriber) run(onError func(error)) {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		snap, ok := s.latest, s.pending
		s.pending = false
		s.mu.Unlock()
		if !ok {
			continue
		}

		if err := s.write(snap); err != nil {
			onError(err)
			return
		}
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		_ = s.close()
	})
}

func (a *App) sessionWS(w http.ResponseWriter, r *http.Request) {
	id, coord := a.session(w, r)

	conn, err := a.upgrader.Upgrade(w, r, w.Header())
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	release := a.sessions.Hold(id)
	defer release()

	sub := newWSSubscriber(conn)
	a.subscribe(id, sub)
	sub.enqueue(a.withPrefs(coord.Snapshot()))

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	a.unsubscribe(id, sub)
}

func (a *App) subscribe(id string, sub *subscriber) {
	a.mu.Lock()
	if a.subs[id] == nil {
		a.subs[id] = make(map[*subscriber]struct{})
	}
	a.subs[id][sub] = struct{}{}
	a.mu.Unlock()

	go sub.run(func(err error) {
		a.logger.Debug("dropping websocket subscriber", "session_id", id, "error", err)
		a.unsubscribe(id, sub)
	})
}

func (a *App) unsubscribe(id string, sub *subscriber) {
	a.mu.Lock()
	delete(a.subs[id], sub)
	if len(a.subs[id]) == 0 {
		delete(a.subs, id)
	}
	a.mu.Unlock()
	sub.stop()
}

// broadcast queues snap for every subscriber of the session and returns without waiting on the network.
func (a *App) broadcast(id string, snap models.Snapshot) {
	snap = a.withPrefs(snap)

	a.mu.RLock()
	for s := range a.subs[id] {
		s.enqueue(snap)
	}
	a.mu.RUnlock()
}

// broadcastAll pushes a fresh snapshot to every connected session.
func (a *App) broadcastAll() {
	a.mu.RLock()
	ids := make([]string, 0, len(a.subs))
	for id := range a.subs {
		ids = append(ids, id)
	}
	a.mu.RUnlock()

	for _, id := range ids {
		if coord, ok := a.sessions.Lookup(id); ok {
			a.broadcast(id, coord.Snapshot())
		}
	}
}
