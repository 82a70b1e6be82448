package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/dongled/internal/api/models"
	"github.com/smazurov/dongled/internal/devices"
	"github.com/smazurov/dongled/internal/presentation"
)

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "External and built-in capture devices with their permission status",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(_ context.Context, _ *struct{}) (*models.DeviceListResponse, error) {
		video, err := s.deviceGroup(devices.MediaVideo)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to enumerate video devices", err)
		}
		audio, err := s.deviceGroup(devices.MediaAudio)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to enumerate audio devices", err)
		}
		return &models.DeviceListResponse{
			Body: models.DeviceListData{Video: video, Audio: audio},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-candidates",
		Method:      http.MethodGet,
		Path:        "/api/devices/candidates",
		Summary:     "List Candidates",
		Description: "Devices offered for a choice when more than one dongle is attached",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.CandidatesResponse, error) {
		resp := &models.CandidatesResponse{}
		resp.Body.Candidates = []devices.Handle{}
		if s.options.Chooser != nil {
			resp.Body.Remote = true
			resp.Body.Candidates = append(resp.Body.Candidates, s.options.Chooser.Candidates()...)
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "select-device",
		Method:      http.MethodPost,
		Path:        "/api/devices/select",
		Summary:     "Select Device",
		Description: "Pick one of the offered candidates and connect to it",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 404, 409},
	}, func(_ context.Context, input *models.SelectDeviceRequest) (*models.SelectDeviceResponse, error) {
		if s.options.Chooser == nil {
			return nil, huma.Error409Conflict("Device choice is not made through the API")
		}
		h, err := s.options.Chooser.Pick(input.Body.UniqueID)
		switch {
		case errors.Is(err, presentation.ErrNoPendingChoice):
			return nil, huma.Error409Conflict("No device choice is pending")
		case errors.Is(err, presentation.ErrUnknownCandidate):
			return nil, huma.Error404NotFound("Device is not a candidate", err)
		case err != nil:
			return nil, huma.Error400BadRequest("Failed to select device", err)
		}
		s.logger.Info("Device selected through API", "device", h.Name, "unique_id", h.UniqueID)

		resp := &models.SelectDeviceResponse{}
		resp.Body.Device = h
		return resp, nil
	})
}

func (s *Server) deviceGroup(media devices.MediaKind) (models.DeviceGroup, error) {
	group := models.DeviceGroup{Permission: s.options.Registry.AuthorizationStatus(media)}
	var err error
	if group.External, err = s.options.Registry.Enumerate(media, devices.ConnectionExternal); err != nil {
		return group, err
	}
	if group.Builtin, err = s.options.Registry.Enumerate(media, devices.ConnectionBuiltin); err != nil {
		return group, err
	}
	if group.External == nil {
		group.External = []devices.Handle{}
	}
	if group.Builtin == nil {
		group.Builtin = []devices.Handle{}
	}
	return group, nil
}
