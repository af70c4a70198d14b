package server

import (
	"github.com/sisu-network/xeyes/types"
)

// TrackService is the processor surface exposed over the API.
type TrackService interface {
	Submit(req *types.TrackRequest) error
	GetResult(txHash string) (*types.TrackRecord, error)
	Stats() *types.TrackStats
}

// ApiHandler is registered under the "xeyes" namespace, so TrackTx is served as xeyes_trackTx.
type ApiHandler struct {
	service TrackService
}

func NewApi(service TrackService) *ApiHandler {
	return &ApiHandler{
		service: service,
	}
}

// Empty function for checking health only.
func (api *ApiHandler) CheckHealth() {
}

// TrackTx starts tracking a source tx in the background. Poll GetResult for the outcome.
func (api *ApiHandler) TrackTx(request *types.TrackRequest) error {
	return api.service.Submit(request)
}

func (api *ApiHandler) GetResult(txHash string) (*types.TrackRecord, error) {
	return api.service.GetResult(txHash)
}

func (api *ApiHandler) Stats() *types.TrackStats {
	return api.service.Stats()
}
