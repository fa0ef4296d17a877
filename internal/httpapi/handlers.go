// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/datachat-oss/datachat/internal/config"
	"github.com/datachat-oss/datachat/internal/dataset"
	"github.com/datachat-oss/datachat/internal/query"
	"github.com/datachat-oss/datachat/internal/store"
)

var errForbidden = errors.New("httpapi: caller does not own this session")

// UploadSession handles POST /v1/sessions: a multipart file upload that
// creates a session, its dataset row, and a live query engine in one call.
func UploadSession(cfg *config.Config, st *store.Store, engines *EngineRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing \"file\" form field"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not open uploaded file"})
			return
		}
		defer file.Close()

		content, err := io.ReadAll(io.LimitReader(file, cfg.MaxUploadSize+1))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
			return
		}

		engine, err := query.Open(cfg.SQLRowCap, cfg.SQLTimeout)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start query engine"})
			return
		}

		sessionID := uuid.NewString()
		sessionDir := filepath.Join(cfg.DataDir, sessionID)
		ds, err := dataset.Ingest(c.Request.Context(), engine, sessionDir, fileHeader.Filename, content, cfg.MaxUploadSize)
		if err != nil {
			engine.Close()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session, err := st.CreateSession(c.Request.Context(), sessionID, id.UserID, ds)
		if err != nil {
			engine.Close()
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist session"})
			return
		}

		engines.Register(session.ID, engine)

		c.JSON(http.StatusCreated, gin.H{
			"id":       session.ID,
			"filename": ds.Filename,
			"profile":  ds.Profile,
		})
	}
}

// ListSessions handles GET /v1/sessions.
func ListSessions(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		sessions, err := st.ListSessions(c.Request.Context(), id.UserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	}
}

// GetSession handles GET /v1/sessions/:id.
func GetSession(st *store.Store, engines *EngineRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		sessionID := c.Param("id")

		session, err := loadOwnedSession(c, st, id.UserID, sessionID)
		if err != nil {
			return
		}

		ds, err := st.GetDataset(c.Request.Context(), sessionID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load dataset"})
			return
		}

		var columns []string
		if err := json.Unmarshal(ds.Columns, &columns); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to decode dataset columns"})
			return
		}

		engine, err := engines.Get(c.Request.Context(), sessionID, ds)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load query engine"})
			return
		}
		preview, err := dataset.Preview(c.Request.Context(), engine)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load preview"})
			return
		}

		messages, err := st.ListMessagesForClient(c.Request.Context(), sessionID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":         session.ID,
			"title":      session.Title,
			"created_at": session.CreatedAt,
			"file": gin.H{
				"filename":     ds.Filename,
				"row_count":    ds.RowCount,
				"column_count": ds.ColumnCount,
				"columns":      columns,
				"preview":      preview,
			},
			"messages": messages,
		})
	}
}

// DeleteSession handles DELETE /v1/sessions/:id.
func DeleteSession(st *store.Store, engines *EngineRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		sessionID := c.Param("id")

		if _, err := loadOwnedSession(c, st, id.UserID, sessionID); err != nil {
			return
		}

		ds, err := st.GetDataset(c.Request.Context(), sessionID)
		if err == nil {
			_ = os.Remove(ds.PathOnDisk)
		}
		engines.Close(sessionID)

		if err := st.DeleteSession(c.Request.Context(), sessionID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// Healthz handles GET /healthz.
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// loadOwnedSession loads sessionID and writes an error response (and
// returns a non-nil error) if it doesn't exist or isn't owned by userID.
func loadOwnedSession(c *gin.Context, st *store.Store, userID, sessionID string) (*store.Session, error) {
	session, err := st.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, err
	}
	if session.UserID != userID {
		// A non-owner gets the same 404 as a truly nonexistent session,
		// rather than a 403 revealing that the ID exists (spec.md's
		// GET/DELETE /sessions/{id} shape).
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, errForbidden
	}
	return session, nil
}
