// Package api provides HTTP routing and handlers for the sync service.
package api

import (
	"github.com/gorilla/mux"
	"staysync/config"
	"staysync/services"
	"staysync/storage"
)

// NewRouter wires all API routes.
func NewRouter(store *storage.PostgresStore, ops *storage.SQLiteStore, rec *services.Reconciler, conn *services.Connector, cfg *config.Config) *mux.Router {
	r := mux.NewRouter()

	r.Use(Logging)
	r.Use(ErrorRecovery)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", Health(store)).Methods("GET")

	// Connection flow
	api.HandleFunc("/properties/{id}/connect/{marketplace}", StartConnect(conn, cfg)).Methods("POST")
	api.HandleFunc("/marketplace/{marketplace}/oauth/callback", OAuthCallback(conn)).Methods("GET")

	// Integrations
	api.HandleFunc("/integrations", ListIntegrations(store)).Methods("GET")
	api.HandleFunc("/integrations/{id}", GetIntegration(store)).Methods("GET")
	api.HandleFunc("/integrations/{id}", DeleteIntegration(store)).Methods("DELETE")
	api.HandleFunc("/integrations/{id}/disconnect", DisconnectIntegration(store)).Methods("POST")
	api.HandleFunc("/integrations/{id}/sync", TriggerSync(rec)).Methods("POST")
	api.HandleFunc("/integrations/{id}/attempts", ListSyncAttempts(store)).Methods("GET")

	// Bookings
	api.HandleFunc("/bookings/{id}", DeleteBooking(store, rec)).Methods("DELETE")

	// Scheduler operations
	api.HandleFunc("/scheduler/commands", EnqueueCommand(ops)).Methods("POST")
	api.HandleFunc("/scheduler/status", SchedulerStatus(ops)).Methods("GET")

	return r
}
