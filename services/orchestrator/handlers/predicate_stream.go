// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/AleutianAI/DimBridge/services/orchestrator/datatypes"
	"github.com/AleutianAI/DimBridge/services/orchestrator/observability"
	"github.com/AleutianAI/DimBridge/services/predicate_engine"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// requestReadTimeout bounds the wait for the single request frame.
	requestReadTimeout = 30 * time.Second
	writeTimeout       = 10 * time.Second
	maxRequestBytes    = 64 << 20
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteJSON(v)
}

// HandlePredicateWebSocket serves GET /v1/predicates/ws.
//
// # Description
//
// The client sends one PredicateRequest frame. The server replies with a
// "progress" frame per engine progress event and finishes with a single
// "result" or "error" frame before closing. Closing the connection early
// cancels the induction.
func HandlePredicateWebSocket(svc *PredicateService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			svc.logger().Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		ws.SetReadLimit(maxRequestBytes)

		requestID := newRequestID()
		var req datatypes.PredicateRequest
		_ = ws.SetReadDeadline(time.Now().Add(requestReadTimeout))
		if err := ws.ReadJSON(&req); err != nil {
			sendStreamError(ws, svc, bindError(err), requestID)
			return
		}
		_ = ws.SetReadDeadline(time.Time{})
		if err := req.Validate(); err != nil {
			sendStreamError(ws, svc, err, requestID)
			return
		}

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()
		go watchDisconnect(ws, cancel)

		progress := func(ev predicate_engine.ProgressEvent) {
			msg := datatypes.StreamMessage{
				Type:       datatypes.StreamProgress,
				Iteration:  ev.Iteration,
				Iterations: ev.Iterations,
				Loss:       ev.Loss,
			}
			if err := sendJSON(ws, msg); err != nil {
				cancel()
			}
		}

		resp, err := svc.Predicates(ctx, &req, progress)
		if err != nil {
			sendStreamError(ws, svc, err, requestID)
			return
		}
		resp.RequestID = requestID
		svc.Metrics.RecordRequest(observability.EndpointWebSocket, "ok")
		if err := sendJSON(ws, datatypes.StreamMessage{Type: datatypes.StreamResult, Result: resp}); err != nil {
			svc.logger().Warn("failed to write websocket result", "request_id", requestID, "error", err)
			return
		}
		closeNormally(ws)
	}
}

// watchDisconnect cancels the induction once the client goes away. Any
// frame after the request is ignored.
func watchDisconnect(ws *websocket.Conn, cancel context.CancelFunc) {
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			cancel()
			return
		}
	}
}

func sendStreamError(ws *websocket.Conn, svc *PredicateService, err error, requestID string) {
	_, body := newErrorResponse(err, requestID)
	svc.logger().Info("predicate stream failed", "request_id", requestID, "code", body.Code, "error", err)
	svc.Metrics.RecordRequest(observability.EndpointWebSocket, body.Code)
	if werr := sendJSON(ws, datatypes.StreamMessage{Type: datatypes.StreamError, Error: &body}); werr != nil {
		return
	}
	closeNormally(ws)
}

func closeNormally(ws *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}
