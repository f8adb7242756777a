package metricsfx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yurykabanov/transferd/pkg/eventbus"
)

const ConfigSSEKeepaliveInterval = "server.sse.keepalive"

const defaultSSEKeepalive = 30 * time.Second

// SSEHandler streams every event published on the Bus to connected HTTP
// clients, mirroring the corpus's SSE hub pattern (broadcast channel in,
// one goroutine-per-connection fan-out out) but riding directly on the
// existing in-process Bus instead of a second broadcast channel.
type SSEHandler struct {
	bus       *eventbus.Bus
	logger    logrus.FieldLogger
	keepalive time.Duration
}

func NewSSEHandler(bus *eventbus.Bus, logger *logrus.Logger, v *viper.Viper) *SSEHandler {
	keepalive := v.GetDuration(ConfigSSEKeepaliveInterval)
	if keepalive == 0 {
		keepalive = defaultSSEKeepalive
	}
	return &SSEHandler{bus: bus, logger: logger, keepalive: keepalive}
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.bus.Subscribe()
	defer sub.Unsubscribe()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.WithError(err).Warn("metricsfx: failed to marshal event for sse")
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// RegisterSSERoute wires the event stream onto the shared HTTP router.
func RegisterSSERoute(router *mux.Router, handler *SSEHandler) {
	router.Handle("/events", handler).Methods(http.MethodGet)
}
