package api

import (
    "net/http"
    "time"

    "github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// PlanProgressWSHandler streams a plan's broker events over a WebSocket.
// Clients connect while a plan is running; if it already finished, they
// get a single snapshot event and the connection closes.
func (s *Server) PlanProgressWSHandler(w http.ResponseWriter, r *http.Request, planID string) {
    plan, err := s.Store.GetPlan(r.Context(), planID)
    if err != nil {
        writeError(w, err, r.URL.Path)
        return
    }
    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    defer func() { _ = conn.Close() }()

    if plan.Status != "running" {
        evt := PlanEvent{Type: "plan." + plan.Status, Data: map[string]any{"planId": plan.ID}}
        if plan.Summary != nil {
            evt.Data["vehiclesUsed"] = plan.Summary.VehiclesUsed
            evt.Data["totalDistance"] = plan.Summary.TotalDistance
        }
        _ = conn.WriteJSON(evt)
        return
    }

    ch := s.Broker.Subscribe(planID)
    defer s.Broker.Unsubscribe(planID, ch)

    // Read pump: clients send nothing meaningful; reads only surface
    // close frames and refresh deadlines.
    done := make(chan struct{})
    go func() {
        defer close(done)
        conn.SetReadLimit(1 << 16)
        _ = conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
        for {
            if _, _, err := conn.ReadMessage(); err != nil {
                return
            }
        }
    }()

    ping := time.NewTicker(25 * time.Second)
    defer ping.Stop()
    for {
        select {
        case <-done:
            return
        case <-ping.C:
            if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
                return
            }
        case evt, ok := <-ch:
            if !ok {
                return
            }
            if err := conn.WriteJSON(evt); err != nil {
                return
            }
            if evt.Type == "plan.completed" || evt.Type == "plan.failed" {
                return
            }
        }
    }
}
