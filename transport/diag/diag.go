// Package diag serves a read-only HTTP diagnostic surface over
// github.com/gorilla/mux: the current status/queue report snapshot and
// attached-channel roster, for out-of-band tooling (a dashboard, a health
// check) that has no business sending motion commands. It is not part of
// the wire protocol spec.md §6 defines — nothing here can queue a block,
// set a config token, or otherwise influence motion — so it sits outside
// every invariant that section states.
package diag

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pathwright/motioncore/dispatch"
	"github.com/pathwright/motioncore/lineio"
)

// Server serves the diagnostic HTTP surface.
type Server struct {
	Dispatcher *dispatch.Dispatcher
	ChannelMux *lineio.Mux

	router *mux.Router
}

// NewServer builds a Server with its routes registered, ready to be handed
// to an http.Server as its Handler.
func NewServer(d *dispatch.Dispatcher, chMux *lineio.Mux) *Server {
	s := &Server{Dispatcher: d, ChannelMux: chMux, router: mux.NewRouter()}
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/channels", s.handleChannels).Methods(http.MethodGet)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleStatus returns the current status/queue report envelope, the same
// shape a wire client receives after a line, with zero consumed bytes and
// no arc in flight (a diagnostic poll is not answering any particular
// line).
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	env := s.Dispatcher.BuildReport(0, false)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(env)
}

// channelView is the read-only projection of a lineio.Channel this
// diagnostic surface exposes: name, role-negotiation state, and whether it
// currently holds the primary data role.
type channelView struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	IsPrimary bool   `json:"is_primary"`
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	chans := s.ChannelMux.Channels()
	out := make([]channelView, 0, len(chans))
	for _, c := range chans {
		out = append(out, channelView{Name: c.Name, State: c.State.String(), IsPrimary: c.IsPrimary})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
