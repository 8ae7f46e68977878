package routers

import (
	"github.com/go-chi/chi/v5"

	"orator/internal/handlers"
	"orator/internal/middleware"
	"orator/internal/models"
)

func BattleRoutes(router *chi.Mux, battleHandler *handlers.BattleHandler) {
	router.Route("/api/v1/battles", func(r chi.Router) {
		r.With(middleware.ValidateRequest[*models.CreateBattleRequest]()).Post("/", battleHandler.CreateHandler)
		r.Get("/{battleId}", battleHandler.GetHandler)
		r.With(middleware.ValidateRequest[*models.DecisionRequest]()).Post("/{battleId}/accept", battleHandler.AcceptHandler)
		r.With(middleware.ValidateRequest[*models.DecisionRequest]()).Post("/{battleId}/decline", battleHandler.DeclineHandler)
		r.With(middleware.ValidateRequest[*models.CompleteRequest]()).Post("/{battleId}/complete", battleHandler.CompleteHandler)
		r.Post("/{battleId}/evaluate", battleHandler.EvaluateHandler)
		r.HandleFunc("/{battleId}/ws", battleHandler.WsHandler)
	})

	router.Get("/api/v1/ratings/{userId}", battleHandler.RatingHandler)
}
