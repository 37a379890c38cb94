package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"staysync/config"
	"staysync/marketplace"
	"staysync/models"
	"staysync/services"
	"staysync/storage"
)

// Health reports service and database liveness.
func Health(store *storage.PostgresStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := "ok"
		if err := store.Pool().Ping(ctx); err != nil {
			status = "degraded"
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": status})
	}
}

type syncRequest struct {
	ExcludeBookingID *uuid.UUID `json:"exclude_booking_id,omitempty"`
}

// TriggerSync runs one reconciliation attempt for an integration and returns
// the structured result. Partial failure is a 200 with success=false.
func TriggerSync(rec *services.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrValidation, "Invalid integration id")
			return
		}

		var req syncRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				WriteError(w, http.StatusBadRequest, ErrBadRequest, "Invalid request body")
				return
			}
		}

		result, err := rec.Sync(r.Context(), id, services.Options{
			Trigger:          models.TriggerManual,
			ExcludeBookingID: req.ExcludeBookingID,
		})
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				WriteError(w, http.StatusNotFound, ErrNotFound, err.Error())
				return
			}
			WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
			return
		}

		WriteJSON(w, http.StatusOK, result)
	}
}

// StartConnect returns the marketplace authorize URL for a property.
func StartConnect(conn *services.Connector, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		propertyID, err := uuid.Parse(vars["id"])
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrValidation, "Invalid property id")
			return
		}

		mp, ok := cfg.Marketplaces[vars["marketplace"]]
		if !ok {
			WriteError(w, http.StatusNotFound, ErrNotFound, "Unknown marketplace")
			return
		}

		authURL, err := conn.AuthorizeURL(mp.ID, propertyID, mp.AuthorizeURL, mp.ClientID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
			return
		}

		WriteJSON(w, http.StatusOK, map[string]string{"authorize_url": authURL})
	}
}

// OAuthCallback redeems the marketplace redirect's code+state and persists
// the integration.
func OAuthCallback(conn *services.Connector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		marketplaceID := mux.Vars(r)["marketplace"]
		code := r.URL.Query().Get("code")
		state := r.URL.Query().Get("state")
		if code == "" || state == "" {
			WriteError(w, http.StatusBadRequest, ErrValidation, "Missing code or state")
			return
		}

		integ, err := conn.Complete(r.Context(), marketplaceID, code, state)
		if err != nil {
			var apiErr *marketplace.APIError
			if errors.As(err, &apiErr) && apiErr.Code == marketplace.ErrCodeInvalidGrant {
				WriteError(w, http.StatusBadRequest, marketplace.ErrCodeInvalidGrant,
					"The authorization has expired or was already used. Start the connection again.")
				return
			}
			if errors.Is(err, services.ErrBadState) || errors.Is(err, services.ErrNotFound) {
				WriteError(w, http.StatusBadRequest, ErrValidation, err.Error())
				return
			}
			WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
			return
		}

		WriteJSON(w, http.StatusOK, integ)
	}
}

// ListIntegrations returns all integrations, active and inactive.
func ListIntegrations(store *storage.PostgresStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		integrations, err := store.ListIntegrations(r.Context(), false)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, ErrInternalError, "Failed to list integrations")
			return
		}
		if integrations == nil {
			integrations = []models.Integration{}
		}
		WriteJSON(w, http.StatusOK, integrations)
	}
}

func GetIntegration(store *storage.PostgresStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrValidation, "Invalid integration id")
			return
		}

		integ, err := store.GetIntegrationByID(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, ErrInternalError, "Failed to get integration")
			return
		}
		if integ == nil {
			WriteError(w, http.StatusNotFound, ErrNotFound, "Integration not found")
			return
		}
		WriteJSON(w, http.StatusOK, integ)
	}
}

// DisconnectIntegration soft-deactivates; credentials stay for a later
// reconnect.
func DisconnectIntegration(store *storage.PostgresStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrValidation, "Invalid integration id")
			return
		}

		if err := store.DeactivateIntegration(r.Context(), id); err != nil {
			WriteError(w, http.StatusInternalServerError, ErrInternalError, "Failed to disconnect integration")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]bool{"disconnected": true})
	}
}

// DeleteIntegration hard-deletes the integration; queued sync tasks cascade.
func DeleteIntegration(store *storage.PostgresStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrValidation, "Invalid integration id")
			return
		}

		if err := store.DeleteIntegration(r.Context(), id); err != nil {
			WriteError(w, http.StatusInternalServerError, ErrInternalError, "Failed to delete integration")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ListSyncAttempts returns the integration's audit log, newest first.
func ListSyncAttempts(store *storage.PostgresStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrValidation, "Invalid integration id")
			return
		}

		limit := 50
		if l := r.URL.Query().Get("limit"); l != "" {
			if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}

		attempts, err := store.ListSyncAttempts(r.Context(), id, limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, ErrInternalError, "Failed to list sync attempts")
			return
		}
		if attempts == nil {
			attempts = []models.SyncAttempt{}
		}
		WriteJSON(w, http.StatusOK, attempts)
	}
}

type commandRequest struct {
	Command       string `json:"command"`
	IntegrationID string `json:"integration_id,omitempty"`
}

// EnqueueCommand writes an operational command (sync_now, sync_integration,
// pause, resume) into the channel the scheduler polls.
func EnqueueCommand(ops *storage.SQLiteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req commandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "Invalid request body")
			return
		}

		cmd := models.CommandType(req.Command)
		switch cmd {
		case models.CmdSyncNow, models.CmdPause, models.CmdResume:
			if err := ops.EnqueueCommand(cmd, nil); err != nil {
				WriteError(w, http.StatusInternalServerError, ErrInternalError, "Failed to enqueue command")
				return
			}
		case models.CmdSyncIntegration:
			if _, err := uuid.Parse(req.IntegrationID); err != nil {
				WriteError(w, http.StatusBadRequest, ErrValidation, "sync_integration requires a valid integration_id")
				return
			}
			if err := ops.EnqueueCommand(cmd, &models.CommandParams{IntegrationID: req.IntegrationID}); err != nil {
				WriteError(w, http.StatusInternalServerError, ErrInternalError, "Failed to enqueue command")
				return
			}
		default:
			WriteError(w, http.StatusBadRequest, ErrValidation, "Unknown command")
			return
		}

		WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}
}

// SchedulerStatus reports when the last scheduled pass started.
func SchedulerStatus(ops *storage.SQLiteStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last, err := ops.GetLastRunTime()
		if err != nil {
			WriteError(w, http.StatusInternalServerError, ErrInternalError, "Failed to read run log")
			return
		}

		resp := map[string]any{"last_run_at": nil}
		if !last.IsZero() {
			resp["last_run_at"] = last
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

type deleteBookingResponse struct {
	Deleted bool             `json:"deleted"`
	Sync    *services.Result `json:"sync,omitempty"`
}

// DeleteBooking soft-deletes a local booking and, if the property has an
// active integration, runs an exclusion-driven sync so the freed dates
// reopen on the marketplace.
func DeleteBooking(store *storage.PostgresStore, rec *services.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrValidation, "Invalid booking id")
			return
		}

		booking, err := store.GetBookingByID(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, ErrInternalError, "Failed to get booking")
			return
		}
		if booking == nil {
			WriteError(w, http.StatusNotFound, ErrNotFound, "Booking not found")
			return
		}

		if err := store.SoftDeleteBooking(r.Context(), id); err != nil {
			WriteError(w, http.StatusInternalServerError, ErrInternalError, "Failed to delete booking")
			return
		}

		resp := deleteBookingResponse{Deleted: true}

		// Reopen the dates on every active integration for this property.
		integrations, err := store.ListIntegrations(r.Context(), true)
		if err != nil {
			log.Printf("Warning: failed to list integrations for booking delete: %v", err)
			WriteJSON(w, http.StatusOK, resp)
			return
		}

		for i := range integrations {
			integ := &integrations[i]
			if integ.PropertyID != booking.PropertyID {
				continue
			}
			result, err := rec.Sync(r.Context(), integ.ID, services.Options{
				Trigger:          models.TriggerBookingDelete,
				ExcludeBookingID: &id,
			})
			if err != nil {
				log.Printf("Warning: reopen sync failed for integration %s: %v", integ.ID, err)
				continue
			}
			resp.Sync = result
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}
