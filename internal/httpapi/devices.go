package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/serebryakov7/telematics-gateway/internal/model"
	"github.com/serebryakov7/telematics-gateway/internal/store"
)

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.Store.ListDevices(r.Context())
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].LastSeen.After(devices[j].LastSeen)
	})
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.Store.GetDevice(r.Context(), r.PathValue("imei"))
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

type createDeviceRequest struct {
	IMEI        string `json:"imei"`
	ModemType   string `json:"modemType"`
	VIN         string `json:"vin"`
	CarBrand    string `json:"carBrand"`
	CarModel    string `json:"carModel"`
	PlateNumber string `json:"plateNumber"`
	Notes       string `json:"notes"`
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !validIMEI(req.IMEI) {
		writeError(w, http.StatusBadRequest, "imei must be 15 digits")
		return
	}
	modemType := req.ModemType
	if modemType == "" {
		modemType = model.DefaultModemType
	}

	dev := model.Device{
		IMEI:        req.IMEI,
		ModemType:   modemType,
		VIN:         req.VIN,
		CarBrand:    req.CarBrand,
		CarModel:    req.CarModel,
		PlateNumber: req.PlateNumber,
		Notes:       req.Notes,
	}
	if err := s.Store.CreateDevice(r.Context(), dev); err != nil {
		mapStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

type updateDeviceRequest struct {
	CarBrand    *string `json:"carBrand"`
	CarModel    *string `json:"carModel"`
	PlateNumber *string `json:"plateNumber"`
	Notes       *string `json:"notes"`
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	patch := store.DevicePatch{
		CarBrand:    req.CarBrand,
		CarModel:    req.CarModel,
		PlateNumber: req.PlateNumber,
		Notes:       req.Notes,
	}
	dev, err := s.Store.UpdateDevice(r.Context(), r.PathValue("imei"), patch)
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

type approveRequest struct {
	Approved *bool `json:"approved"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	// An empty or malformed body still means "approve".
	json.NewDecoder(r.Body).Decode(&req)
	approved := true
	if req.Approved != nil {
		approved = *req.Approved
	}
	patch := store.DevicePatch{Approved: &approved}
	dev, err := s.Store.UpdateDevice(r.Context(), r.PathValue("imei"), patch)
	if err != nil {
		mapStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteDevice(r.Context(), r.PathValue("imei")); err != nil {
		mapStoreErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
