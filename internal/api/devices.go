package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/FairForge/multipath/internal/mpath"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	defaultBlockLength = 4096
	maxBlockLength     = 1 << 20
	maxMessageLength   = 4096
)

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices := make([]mpath.Snapshot, 0)
	for _, name := range s.devices.List() {
		t, err := s.devices.Get(name)
		if err != nil {
			// removed since List
			continue
		}
		devices = append(devices, t.Multipath().Snapshot())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"devices": devices})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	t, err := s.devices.Get(mux.Vars(r)["name"])
	if err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t.Multipath().Snapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var kind mpath.StatusType
	switch r.URL.Query().Get("type") {
	case "", "info":
		kind = mpath.StatusInfo
	case "table":
		kind = mpath.StatusTable
	default:
		writeError(w, http.StatusBadRequest, ErrInvalidRequest, "type must be info or table")
		return
	}

	status, err := s.devices.Status(mux.Vars(r)["name"], kind)
	if err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(w, status+"\n")
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageLength))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, ErrInvalidRequest, "message too long")
		return
	}
	line := strings.TrimSpace(string(body))
	if line == "" {
		writeError(w, http.StatusBadRequest, ErrInvalidRequest, "empty message")
		return
	}

	name := mux.Vars(r)["name"]
	if err := s.devices.Message(name, line); err != nil {
		s.writeDeviceError(w, r, err)
		return
	}

	s.logger.Info("device message",
		zap.String("device", name),
		zap.String("message", line),
		zap.String("request_id", RequestID(r.Context())))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request) {
	noflush, err := parseFlag(r.URL.Query().Get("noflush"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidRequest, "noflush must be a boolean")
		return
	}
	if err := s.devices.Suspend(mux.Vars(r)["name"], noflush); err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.devices.Resume(mux.Vars(r)["name"]); err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReadBlocks(w http.ResponseWriter, r *http.Request) {
	offset, length, ok := blockRange(w, r)
	if !ok {
		return
	}

	t, err := s.devices.Get(mux.Vars(r)["name"])
	if err != nil {
		s.writeDeviceError(w, r, err)
		return
	}

	buf := make([]byte, length)
	if err := t.ReadAt(r.Context(), buf, offset); err != nil {
		s.writeDeviceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(buf)))
	_, _ = w.Write(buf)
}

func (s *Server) handleWriteBlocks(w http.ResponseWriter, r *http.Request) {
	offset, err := strconv.ParseInt(mux.Vars(r)["offset"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidRequest, "bad offset")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBlockLength))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, ErrInvalidRequest, "payload too large")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, ErrInvalidRequest, "empty payload")
		return
	}

	t, err := s.devices.Get(mux.Vars(r)["name"])
	if err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	if err := t.WriteAt(r.Context(), data, offset); err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	t, err := s.devices.Get(mux.Vars(r)["name"])
	if err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	if err := t.Flush(r.Context()); err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func blockRange(w http.ResponseWriter, r *http.Request) (offset int64, length int, ok bool) {
	offset, err := strconv.ParseInt(mux.Vars(r)["offset"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidRequest, "bad offset")
		return 0, 0, false
	}

	length = defaultBlockLength
	if v := r.URL.Query().Get("length"); v != "" {
		length, err = strconv.Atoi(v)
		if err != nil || length <= 0 || length > maxBlockLength {
			writeError(w, http.StatusBadRequest, ErrInvalidRequest, "length must be between 1 and 1048576")
			return 0, 0, false
		}
	}
	return offset, length, true
}

func parseFlag(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New("not a boolean")
	}
	return b, nil
}
