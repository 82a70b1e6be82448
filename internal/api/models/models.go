// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"github.com/smazurov/dongled/internal/devices"
	"github.com/smazurov/dongled/internal/session"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Session models
type SessionResponse struct {
	Body session.Status
}

type LifecycleRequest struct {
	Phase string `path:"phase" enum:"background,active" example:"background" doc:"Lifecycle phase to enter"`
}

// Device models
type DeviceGroup struct {
	Permission devices.AuthStatus `json:"permission" example:"authorized" doc:"Capture permission for this media kind"`
	External   []devices.Handle   `json:"external" doc:"Devices attached over USB"`
	Builtin    []devices.Handle   `json:"builtin" doc:"Devices built into the host"`
}

type DeviceListData struct {
	Video DeviceGroup `json:"video" doc:"Video capture devices"`
	Audio DeviceGroup `json:"audio" doc:"Audio capture devices"`
}

type DeviceListResponse struct {
	Body DeviceListData
}

type CandidatesData struct {
	Candidates []devices.Handle `json:"candidates" doc:"Devices waiting for a choice"`
	Remote     bool             `json:"remote" doc:"Whether a choice can be made through this API"`
}

type CandidatesResponse struct {
	Body CandidatesData
}

type SelectDeviceRequest struct {
	Body struct {
		UniqueID string `json:"unique_id" minLength:"1" example:"usb-534d_2109-video-index0" doc:"Unique id of the candidate to connect"`
	}
}

type SelectDeviceResponse struct {
	Body struct {
		Device devices.Handle `json:"device" doc:"Selected device"`
	}
}
