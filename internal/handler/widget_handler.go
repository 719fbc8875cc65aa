package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/leadchat-go/internal/domain"
	"github.com/boddenberg/leadchat-go/internal/service"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsReadLimit  = 4 << 10
)

// widgetFrame is what the widget sends over the socket.
type widgetFrame struct {
	Type string  `json:"type"` // pointer, scroll, toggle
	X    float64 `json:"x,omitempty"`
	Y    float64 `json:"y,omitempty"`
	TS   int64   `json:"ts,omitempty"` // unix millis
	Open bool    `json:"open,omitempty"`
}

// serverFrame is what the server pushes to the widget.
type serverFrame struct {
	Type   string                  `json:"type"` // plan, open
	Reason domain.ActivationReason `json:"reason,omitempty"`
	Plan   *domain.ActivationPlan  `json:"plan,omitempty"`
}

// ============================================================
// GET /v1/widget/context
// ============================================================

func widgetContextHandler(activator *service.Activator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/widget/context")
		defer span.End()

		pageURL, timeOnPage := pageParams(r)
		plan, err := activator.Plan(ctx, ScopeFromContext(ctx), pageURL, timeOnPage)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("page.type", string(plan.Context.PageType)))
		writeJSON(w, http.StatusOK, plan)
	}
}

// ============================================================
// GET /v1/widget/ws
// ============================================================

// widgetSocketHandler keeps one activation alive per mounted widget. The
// socket closing is the widget unmounting.
func widgetSocketHandler(activator *service.Activator, allowedOrigins []string, logger *zap.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(allowedOrigins, origin)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		scope := ScopeFromContext(ctx)
		pageURL, timeOnPage := pageParams(r)

		// Upgrade writes its own response, so carry the scope cookie over.
		respHeader := http.Header{}
		for _, c := range w.Header().Values("Set-Cookie") {
			respHeader.Add("Set-Cookie", c)
		}
		conn, err := upgrader.Upgrade(w, r, respHeader)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		send := make(chan serverFrame, 4)
		done := make(chan struct{})
		push := func(f serverFrame) {
			select {
			case send <- f:
			case <-done:
			default:
				logger.Warn("widget socket send buffer full", zap.String("type", f.Type))
			}
		}

		activation, err := activator.Mount(ctx, scope, pageURL, timeOnPage, func(reason domain.ActivationReason) {
			push(serverFrame{Type: "open", Reason: reason})
		})
		if err != nil {
			logger.Error("widget mount failed", zap.Error(err))
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "activation unavailable"),
				time.Now().Add(wsWriteWait))
			return
		}
		defer activation.Unmount()

		plan := activation.Plan()
		push(serverFrame{Type: "plan", Plan: &plan})

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			writePump(conn, send, done, logger)
		}()

		readPump(conn, activation, r, logger)
		close(done)
		<-writerDone
	}
}

func readPump(conn *websocket.Conn, activation *service.Activation, r *http.Request, logger *zap.Logger) {
	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var f widgetFrame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Debug("widget socket closed", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		at := time.Now()
		if f.TS > 0 {
			at = time.UnixMilli(f.TS)
		}
		switch f.Type {
		case "pointer":
			activation.Pointer(domain.PointerSample{X: f.X, Y: f.Y, At: at})
		case "scroll":
			activation.Scroll(at)
		case "toggle":
			activation.WidgetToggled(r.Context(), f.Open)
		default:
			logger.Debug("unknown widget frame", zap.String("type", f.Type))
		}
	}
}

func writePump(conn *websocket.Conn, send <-chan serverFrame, done <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f := <-send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(f); err != nil {
				logger.Debug("widget socket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}

// pageParams reads ?url= and ?time_on_page_ms=.
func pageParams(r *http.Request) (string, time.Duration) {
	q := r.URL.Query()
	var onPage time.Duration
	if v := q.Get("time_on_page_ms"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			onPage = time.Duration(ms) * time.Millisecond
		}
	}
	return q.Get("url"), onPage
}
