package httpapi

import (
	"fmt"
	"net/http"

	"github.com/R3E-Network/todo_service/internal/httputil"
)

const tracingDemoGreeting = "Hello, Go server!"

// tracingDemo calls back into this service so the trace ID can be followed
// across an outbound hop.
func (h *handler) tracingDemo(w http.ResponseWriter, r *http.Request) {
	resp, err := h.conn.HTTPClient().Get(r.Context(), "/tracing-demo/part2")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	msg, err := httputil.ReadText(resp)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Got message: %s", msg)
}

func (h *handler) tracingDemoPart2(w http.ResponseWriter, r *http.Request) {
	h.log.WithTrace(r.Context()).Info("received traced call")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(tracingDemoGreeting))
}
