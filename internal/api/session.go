package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/dongled/internal/api/models"
	"github.com/smazurov/dongled/internal/lifecycle"
)

func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/session",
		Summary:     "Get Session",
		Description: "Current session state, status message and bound devices",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.SessionResponse, error) {
		return &models.SessionResponse{Body: s.options.Session.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "enter-lifecycle-phase",
		Method:        http.MethodPost,
		Path:          "/api/lifecycle/{phase}",
		Summary:       "Enter Lifecycle Phase",
		Description:   "Move the application to the background (tears the session down) or back to the foreground (re-enumerates devices)",
		Tags:          []string{"session"},
		Security:      withAuth(),
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{401, 422},
	}, func(_ context.Context, input *models.LifecycleRequest) (*struct{}, error) {
		phase, err := lifecycle.ParsePhase(input.Phase)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		lifecycle.Publish(s.eventBus, phase, lifecycle.SourceAPI)
		return &struct{}{}, nil
	})
}
