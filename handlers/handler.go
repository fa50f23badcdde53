package handlers

import (
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/padraicbc/pageantapi/roster"
	"github.com/padraicbc/pageantapi/scoring"
)

// Handler holds shared dependencies used by all route handlers.
type Handler struct {
	db     *bun.DB
	svc    *scoring.Service
	roster *roster.Store
	log    *zap.Logger
	JWTKey []byte
}

// New creates a Handler around the scoring service and roster. A nil logger
// falls back to the global zap logger.
func New(db *bun.DB, svc *scoring.Service, store *roster.Store, jwtKey []byte, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.L()
	}
	return &Handler{db: db, svc: svc, roster: store, log: log, JWTKey: jwtKey}
}
