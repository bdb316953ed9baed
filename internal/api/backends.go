package api

import (
	"net/http"

	"github.com/seantiz/modelrouter/internal/model"
)

func (s *Server) handleListBackends(w http.ResponseWriter, _ *http.Request) {
	backends := s.registry.List()
	s.writeJSON(w, http.StatusOK, backends)
}

func (s *Server) handleCharacteristics(w http.ResponseWriter, _ *http.Request) {
	all := s.registry.Catalog().All()
	if all == nil {
		all = map[string]model.Characteristics{}
	}
	s.writeJSON(w, http.StatusOK, all)
}
